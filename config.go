package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAddr            = ":8080"
	defaultDBPath          = "blog.db"
	defaultSessionLifetime = 7 * 24 * time.Hour
	defaultWidgetTimeout   = 5 * time.Second
)

// Config is read from the environment after godotenv has loaded .env.
type Config struct {
	Addr            string
	DBPath          string
	AdminPass       string
	AdminPassHash   string
	SecureCookies   bool
	SessionLifetime time.Duration
	DashboardConfig string
	WidgetTimeout   time.Duration
}

func loadConfig() (Config, error) {
	cfg := Config{
		Addr:            envOr("ADDR", defaultAddr),
		DBPath:          envOr("DB_PATH", defaultDBPath),
		AdminPass:       os.Getenv("ADMIN_PASS"),
		AdminPassHash:   os.Getenv("ADMIN_PASS_HASH"),
		SecureCookies:   os.Getenv("SECURE_COOKIES") == "true",
		DashboardConfig: os.Getenv("DASHBOARD_CONFIG"),
	}

	if cfg.AdminPassHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.AdminPassHash)); err != nil {
			return Config{}, fmt.Errorf("ADMIN_PASS_HASH is not a bcrypt hash: %w", err)
		}
	}

	var err error
	if cfg.SessionLifetime, err = envDuration("SESSION_LIFETIME", defaultSessionLifetime); err != nil {
		return Config{}, err
	}
	if cfg.WidgetTimeout, err = envDuration("WIDGET_TIMEOUT", defaultWidgetTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

// passwordHash returns the bcrypt hash the login form is checked against.
func (c Config) passwordHash() string {
	if c.AdminPassHash != "" {
		return c.AdminPassHash
	}

	pass := c.AdminPass
	if pass == "" {
		log.Println("WARNING: ADMIN_PASS not set, using default password")
		pass = "password"
	}
	return mustHashPassword(pass)
}
