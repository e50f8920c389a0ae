package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// testPasswordHash is the hash of "password" at the cheapest cost, so each
// test blog does not pay for a full bcrypt run.
var testPasswordHash = func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}()

func setupTestBlog(t *testing.T) *Blog {
	t.Helper()
	db := setupTestDB(t)

	cfg := Config{
		AdminPassHash:   testPasswordHash,
		SessionLifetime: time.Hour,
	}
	return NewBlog(db, cfg, NewDashboard(defaultDashboardConfig(), time.Second))
}

// addCSRFToken adds a CSRF token to the request (cookie + form value)
func addCSRFToken(req *http.Request, form url.Values) {
	token := "test-csrf-token-12345"
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	if form != nil {
		form.Set(csrfFieldName, token)
	}
}

// authedRequest returns a request carrying a live session cookie.
func authedRequest(t *testing.T, blog *Blog, method, target string) *http.Request {
	t.Helper()
	token, err := createSession(blog.db, time.Hour)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	return req
}

func TestHome(t *testing.T) {
	blog := setupTestBlog(t)

	_, err := createPost(blog.db, "Test Post", "Test content")
	if err != nil {
		t.Fatalf("creating test post: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	blog.Home(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "Test Post") {
		t.Error("expected response to contain 'Test Post'")
	}
}

func TestHome_Empty(t *testing.T) {
	blog := setupTestBlog(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	blog.Home(w, req)

	if !strings.Contains(w.Body.String(), "No posts yet") {
		t.Error("expected empty state message")
	}
}

func TestHome_NewestFirst(t *testing.T) {
	blog := setupTestBlog(t)
	setClock(t, clockStart, time.Minute)

	createPost(blog.db, "Older post", "Content")
	createPost(blog.db, "Newer post", "Content")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	blog.Home(w, req)

	body := w.Body.String()
	if strings.Index(body, "Newer post") > strings.Index(body, "Older post") {
		t.Error("expected newer post to be listed first")
	}
}

func TestHome_EscapesTitle(t *testing.T) {
	blog := setupTestBlog(t)

	createPost(blog.db, "<b>bold</b>", "Content")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	blog.Home(w, req)

	if !strings.Contains(w.Body.String(), "&lt;b&gt;bold&lt;/b&gt;") {
		t.Error("expected title to be escaped")
	}
}

func TestView(t *testing.T) {
	blog := setupTestBlog(t)

	post, err := createPost(blog.db, "Detail Test", "<p>Detail <em>content</em></p>")
	if err != nil {
		t.Fatalf("creating test post: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/post?id="+strconv.FormatInt(post.ID, 10), nil)
	w := httptest.NewRecorder()

	blog.View(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "<title>Detail Test</title>") {
		t.Error("expected post title as page title")
	}
	if !strings.Contains(body, "<p>Detail <em>content</em></p>") {
		t.Error("expected post content to be rendered as HTML")
	}
	if !strings.Contains(body, `id="pdf-content"`) || !strings.Contains(body, `id="download-pdf-btn"`) {
		t.Error("expected PDF export region and button")
	}
}

func TestView_NotFound(t *testing.T) {
	blog := setupTestBlog(t)

	for _, target := range []string{"/post", "/post?id=", "/post?id=12345", "/post?id=abc"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()

		blog.View(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusNotFound, w.Code)
		}
		if !strings.Contains(w.Body.String(), "Post not found") {
			t.Errorf("%s: expected in-page not found message", target)
		}
	}
}

func TestCreate_GET(t *testing.T) {
	blog := setupTestBlog(t)

	req := httptest.NewRequest(http.MethodGet, "/new", nil)
	w := httptest.NewRecorder()

	blog.Create(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestCreate_POST(t *testing.T) {
	blog := setupTestBlog(t)

	form := url.Values{}
	form.Set("title", "New Post")
	form.Set("content", "<p>New content</p><script>steal()</script>")

	req := httptest.NewRequest(http.MethodPost, "/new", nil) // body set after CSRF
	addCSRFToken(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	blog.Create(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, w.Code)
	}

	posts := listPosts(blog.db)
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Title != "New Post" {
		t.Errorf("expected title 'New Post', got '%s'", posts[0].Title)
	}
	if posts[0].Content != "<p>New content</p>" {
		t.Errorf("expected sanitized content, got '%s'", posts[0].Content)
	}

	wantLocation := "/?published=" + strconv.FormatInt(posts[0].ID, 10)
	if w.Header().Get("Location") != wantLocation {
		t.Errorf("expected redirect to %s, got %s", wantLocation, w.Header().Get("Location"))
	}
}

func TestCreate_POST_MissingTitle(t *testing.T) {
	blog := setupTestBlog(t)

	form := url.Values{}
	form.Set("content", "Some content")

	req := httptest.NewRequest(http.MethodPost, "/new", nil)
	addCSRFToken(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	blog.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Some content") {
		t.Error("expected entered content to be kept in the form")
	}
	if len(listPosts(blog.db)) != 0 {
		t.Error("expected no post to be created")
	}
}

func TestCreate_POST_NoCSRF(t *testing.T) {
	blog := setupTestBlog(t)

	form := url.Values{}
	form.Set("title", "New Post")
	form.Set("content", "New content")

	req := httptest.NewRequest(http.MethodPost, "/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	blog.Create(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestCreate_POST_StorageUnreadable(t *testing.T) {
	blog := setupTestBlog(t)
	setItem(blog.db, postsKey, "{broken")

	form := url.Values{}
	form.Set("title", "New Post")
	form.Set("content", "New content")

	req := httptest.NewRequest(http.MethodPost, "/new", nil)
	addCSRFToken(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	blog.Create(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(w.Body.String(), "could not be saved") {
		t.Error("expected a visible error message")
	}
}

func TestRoutes_GuardsProtectedPages(t *testing.T) {
	blog := setupTestBlog(t)
	router := blog.routes()

	for _, target := range []string{"/", "/new", "/post?id=1"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusSeeOther {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusSeeOther, w.Code)
		}
		if w.Header().Get("Location") != "/login" {
			t.Errorf("%s: expected redirect to /login, got %s", target, w.Header().Get("Location"))
		}
		if strings.Contains(w.Body.String(), "post-list") {
			t.Errorf("%s: expected no page content before login", target)
		}
	}
}

func TestRoutes_Authenticated(t *testing.T) {
	blog := setupTestBlog(t)
	router := blog.routes()

	post, _ := createPost(blog.db, "Routed", "<p>Routed body</p>")

	tests := []struct {
		target string
		want   int
	}{
		{"/", http.StatusOK},
		{"/new", http.StatusOK},
		{"/post?id=" + strconv.FormatInt(post.ID, 10), http.StatusOK},
		{"/post?id=1", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest(t, blog, http.MethodGet, tt.target))

		if w.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.target, tt.want, w.Code)
		}
		if w.Header().Get(requestIDHeader) == "" {
			t.Errorf("%s: expected request id header", tt.target)
		}
	}
}

func TestLoginFlow(t *testing.T) {
	blog := setupTestBlog(t)
	router := blog.routes()

	form := url.Values{}
	form.Set("password", "password")
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	addCSRFToken(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("login: expected status %d, got %d", http.StatusSeeOther, w.Code)
	}

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("expected session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(session)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("index after login: expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = httptest.NewRecorder()
	logout := logoutRequest(session.Value)
	router.ServeHTTP(w, logout)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(session)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("index after logout: expected status %d, got %d", http.StatusSeeOther, w.Code)
	}
}

func TestLogin_CountsVisits(t *testing.T) {
	blog := setupTestBlog(t)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		blog.Login(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	}

	value, _, _ := getItem(blog.db, visitCountKey)
	if value != "3" {
		t.Errorf("expected visit count 3, got %q", value)
	}
}

func TestHealth(t *testing.T) {
	blog := setupTestBlog(t)

	w := httptest.NewRecorder()
	blog.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}
