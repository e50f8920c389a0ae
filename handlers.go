package main

import (
	"bytes"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// render executes a template into a buffer first so a template error never
// leaves a half written page behind.
func (b *Blog) render(w http.ResponseWriter, page, name string, status int, data map[string]any) {
	var buf bytes.Buffer
	if err := b.templates[page].ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("ERROR: rendering %s: %v", page, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (b *Blog) Home(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":           "Home",
		"Posts":           listPosts(b.db),
		"Published":       r.URL.Query().Get("published"),
		"IsAuthenticated": true,
		"CSRFToken":       b.ensureCSRFToken(w, r),
	}
	b.render(w, "index.html", "base", http.StatusOK, data)
}

func (b *Blog) View(w http.ResponseWriter, r *http.Request) {
	post := getPost(b.db, r.URL.Query().Get("id"))

	data := map[string]any{
		"Title":           "Post not found",
		"Post":            post,
		"IsAuthenticated": true,
		"CSRFToken":       b.ensureCSRFToken(w, r),
	}
	if post == nil {
		b.render(w, "view.html", "base", http.StatusNotFound, data)
		return
	}

	data["Title"] = post.Title
	b.render(w, "view.html", "base", http.StatusOK, data)
}

func (b *Blog) Create(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":           "New Post",
		"IsAuthenticated": true,
		"CSRFToken":       b.ensureCSRFToken(w, r),
	}

	if r.Method == http.MethodGet {
		b.render(w, "create.html", "base", http.StatusOK, data)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	content := r.FormValue("content")
	data["PostTitle"] = title
	data["PostContent"] = content

	if title == "" || strings.TrimSpace(content) == "" {
		data["Error"] = "Title and content are required."
		b.render(w, "create.html", "base", http.StatusBadRequest, data)
		return
	}

	post, err := createPost(b.db, title, content)
	if err != nil {
		log.Printf("ERROR: creating post: %v", err)
		data["Error"] = "Your post could not be saved. Please try again."
		b.render(w, "create.html", "base", http.StatusInternalServerError, data)
		return
	}

	http.Redirect(w, r, "/?published="+strconv.FormatInt(post.ID, 10), http.StatusSeeOther)
}

func (b *Blog) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		b.renderLogin(w, r, http.StatusOK, "")
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	if !checkPassword(b.passwordHash, r.FormValue("password")) {
		b.renderLogin(w, r, http.StatusUnauthorized, "Incorrect password, please try again.")
		return
	}

	token, err := createSession(b.db, b.sessionLifetime)
	if err != nil {
		log.Printf("ERROR: creating session: %v", err)
		b.renderLogin(w, r, http.StatusInternalServerError, "Could not sign you in. Please try again.")
		return
	}

	b.setSessionCookie(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) renderLogin(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	visits, err := incrementVisitCount(b.db)
	if err != nil {
		log.Printf("WARN: counting visit: %v", err)
	}

	today := time.Now()
	data := map[string]any{
		"Title":           "Login",
		"Error":           errMsg,
		"Today":           today,
		"Lunar":           b.dashboard.LunarDate(today),
		"Quote":           b.dashboard.DailyQuote(today),
		"Visits":          visits,
		"Feeds":           b.dashboard.Feeds(),
		"IsAuthenticated": b.isAuthenticated(r),
		"CSRFToken":       b.ensureCSRFToken(w, r),
	}
	b.render(w, "login.html", "base", status, data)
}

// Logout is safe to repeat: without a session it only clears the cookie and
// redirects.
func (b *Blog) Logout(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := deleteSession(b.db, cookie.Value); err != nil {
			log.Printf("ERROR: %v", err)
		}
	}

	b.clearSessionCookie(w)
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (b *Blog) WeatherWidget(w http.ResponseWriter, r *http.Request) {
	weather, err := b.dashboard.Weather(r.Context(), clientIP(r))
	if err != nil {
		log.Printf("WARN: weather widget: %v", err)
	}
	b.render(w, "widgets.html", "weather", http.StatusOK, map[string]any{"Weather": weather})
}

// clientIP prefers the first X-Forwarded-For hop so the visitor's address
// survives a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (b *Blog) NewsWidget(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["feed"]
	if _, ok := b.dashboard.feed(name); !ok {
		http.NotFound(w, r)
		return
	}

	items, err := b.dashboard.News(r.Context(), name)
	if err != nil {
		log.Printf("WARN: news widget: %v", err)
	}
	b.render(w, "widgets.html", "news", http.StatusOK, map[string]any{
		"Items":  items,
		"Failed": err != nil,
	})
}

func (b *Blog) Health(w http.ResponseWriter, r *http.Request) {
	if err := b.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK\n"))
}
