package main

import (
	"database/sql"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

type Blog struct {
	db              *sql.DB
	templates       map[string]*template.Template
	dashboard       *Dashboard
	passwordHash    string
	secureCookies   bool
	sessionLifetime time.Duration
}

func NewBlog(db *sql.DB, cfg Config, dashboard *Dashboard) *Blog {
	return &Blog{
		db:              db,
		templates:       loadTemplates(),
		dashboard:       dashboard,
		passwordHash:    cfg.passwordHash(),
		secureCookies:   cfg.SecureCookies,
		sessionLifetime: cfg.SessionLifetime,
	}
}

// routes wires every page behind the access guard. Public paths are let
// through by requireAuth itself. Logging wraps the whole router so unmatched
// requests are logged too.
func (b *Blog) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(b.requireAuth)

	fs := http.FileServer(http.Dir("static"))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", fs))

	// Public routes
	r.HandleFunc("/healthz", b.Health).Methods(http.MethodGet)
	r.HandleFunc(loginPath, b.Login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", b.Logout).Methods(http.MethodPost)
	r.HandleFunc("/widgets/weather", b.WeatherWidget).Methods(http.MethodGet)
	r.HandleFunc("/widgets/news/{feed}", b.NewsWidget).Methods(http.MethodGet)

	// Protected routes
	r.HandleFunc("/", b.Home).Methods(http.MethodGet)
	r.HandleFunc("/new", b.Create).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/post", b.View).Methods(http.MethodGet)

	return logRequests(r)
}

func main() {
	godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
