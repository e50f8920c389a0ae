package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type cliOptions struct {
	cfg    Config
	dbPath string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:          "journal",
		Short:        "A password protected personal blog",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = opts.dbPath
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDBPath, "SQLite database path (overrides DB_PATH)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newPostsCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newHashPasswordCommand())

	return cmd
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address (overrides ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg Config) error {
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err = initDB(db); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	if err = cleanupExpiredSessions(db); err != nil {
		log.Printf("WARN: %v", err)
	}

	dashCfg, err := loadDashboardConfig(cfg.DashboardConfig)
	if err != nil {
		return err
	}

	blog := NewBlog(db, cfg, NewDashboard(dashCfg, cfg.WidgetTimeout))

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupExpiredSessions(db); err != nil {
					log.Printf("WARN: %v", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           blog.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	log.Printf("INFO: server starting on %s", cfg.Addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("INFO: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func withDB(opts *cliOptions, fn func(*sql.DB) error) error {
	db, err := openDB(opts.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := initDB(db); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	return fn(db)
}

func newPostsCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Inspect and write posts",
	}

	cmd.AddCommand(newPostsListCommand(opts))
	cmd.AddCommand(newPostsShowCommand(opts))
	cmd.AddCommand(newPostsNewCommand(opts))
	return cmd
}

func newPostsListCommand(opts *cliOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *sql.DB) error {
				posts := listPosts(db)
				out := cmd.OutOrStdout()

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(posts)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPUBLISHED\tTITLE")
				for _, p := range posts {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, formatDate(p.CreatedAt()), p.Title)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print posts as JSON")
	return cmd
}

func newPostsShowCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a single post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *sql.DB) error {
				post := getPost(db, args[0])
				if post == nil {
					return fmt.Errorf("post %s not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n%s\n\n%s\n", post.Title, formatDate(post.CreatedAt()), post.Content)
				return nil
			})
		},
	}
}

func newPostsNewCommand(opts *cliOptions) *cobra.Command {
	var title, content, file string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Publish a post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				content = string(data)
			}
			title = strings.TrimSpace(title)
			if title == "" || strings.TrimSpace(content) == "" {
				return errors.New("title and content are required")
			}

			return withDB(opts, func(db *sql.DB) error {
				post, err := createPost(db, title, content)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), post.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "post title")
	cmd.Flags().StringVar(&content, "content", "", "post content (HTML)")
	cmd.Flags().StringVar(&file, "file", "", "read content from a file, or - for stdin")
	return cmd
}

func newImportCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import posts exported from the browser version (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			coll, err := decodePosts(string(data))
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			return withDB(opts, func(db *sql.DB) error {
				n, err := importPosts(db, coll.Posts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d posts\n", n, len(coll.Posts))
				return nil
			})
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASS_HASH",
		Long:  "Print a bcrypt hash for ADMIN_PASS_HASH. Without an argument the password is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			fmt.Fprintln(cmd.OutOrStdout(), mustHashPassword(password))
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
