package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/session"
	"github.com/hitoshi/ebuddy/internal/store"
)

// --- モック定義 ---

type mockBrowserContexts struct {
	contexts map[string]*session.Context
	createFn func(userAgent string) (*session.Context, error)
	created  int
}

func newMockBrowserContexts() *mockBrowserContexts {
	return &mockBrowserContexts{contexts: make(map[string]*session.Context)}
}

func (m *mockBrowserContexts) Get(id string) (*session.Context, bool) {
	bc, ok := m.contexts[id]
	return bc, ok
}

func (m *mockBrowserContexts) Create(userAgent string) (*session.Context, error) {
	m.created++
	if m.createFn != nil {
		return m.createFn(userAgent)
	}
	bc := &session.Context{ID: "new-context", Store: store.New(), UserAgent: userAgent}
	m.contexts[bc.ID] = bc
	return bc, nil
}

func (m *mockBrowserContexts) add(id string, user *model.AuthUser) *session.Context {
	st := store.New()
	if user != nil {
		st.Dispatch(store.SetAuthUser{User: user})
	}
	bc := &session.Context{ID: id, Store: st}
	m.contexts[id] = bc
	return bc
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestBrowserContextMiddleware_ExistingContext_InjectsUserID(t *testing.T) {
	contexts := newMockBrowserContexts()
	contexts.add("ctx-1", &model.AuthUser{UID: "user-123"})

	mw := NewBrowserContextMiddleware(contexts, CookieConfig{MaxAge: 3600})

	var capturedUserID, capturedContextID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		if bc, ok := BrowserContextFromContext(r.Context()); ok {
			capturedContextID = bc.ID
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: ContextCookieName, Value: "ctx-1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedContextID != "ctx-1" {
		t.Errorf("context ID = %q, want %q", capturedContextID, "ctx-1")
	}
	if contexts.created != 0 {
		t.Errorf("Create called %d times, want 0", contexts.created)
	}
}

func TestBrowserContextMiddleware_AnonymousContext_NoUserID(t *testing.T) {
	contexts := newMockBrowserContexts()
	contexts.add("ctx-anon", nil)

	mw := NewBrowserContextMiddleware(contexts, CookieConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err == nil {
			t.Error("expected no user ID for anonymous context")
		}
		if _, ok := BrowserContextFromContext(r.Context()); !ok {
			t.Error("expected browser context to be injected")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ContextCookieName, Value: "ctx-anon"})
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestBrowserContextMiddleware_NoCookie_CreatesContextAndSetsCookie(t *testing.T) {
	contexts := newMockBrowserContexts()
	mw := NewBrowserContextMiddleware(contexts, CookieConfig{Secure: true, Domain: "example.com", MaxAge: 86400})

	var capturedUA string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bc, ok := BrowserContextFromContext(r.Context())
		if !ok {
			t.Fatal("expected browser context")
		}
		capturedUA = bc.UserAgent
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if contexts.created != 1 {
		t.Errorf("Create called %d times, want 1", contexts.created)
	}
	if capturedUA != "test-agent" {
		t.Errorf("user agent = %q, want %q", capturedUA, "test-agent")
	}

	c := findCookie(w.Result(), ContextCookieName)
	if c == nil {
		t.Fatal("expected browser context cookie")
	}
	if c.Value != "new-context" {
		t.Errorf("cookie value = %q, want %q", c.Value, "new-context")
	}
	if !c.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if !c.Secure {
		t.Error("cookie should be Secure")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", c.MaxAge)
	}
}

func TestBrowserContextMiddleware_UnknownCookie_CreatesNewContext(t *testing.T) {
	contexts := newMockBrowserContexts()
	mw := NewBrowserContextMiddleware(contexts, CookieConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ContextCookieName, Value: "swept-context"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if contexts.created != 1 {
		t.Errorf("Create called %d times, want 1", contexts.created)
	}
	if c := findCookie(w.Result(), ContextCookieName); c == nil || c.Value != "new-context" {
		t.Errorf("expected cookie to be replaced with new-context, got %+v", c)
	}
}

func TestBrowserContextMiddleware_CreateFails_Returns500(t *testing.T) {
	contexts := newMockBrowserContexts()
	contexts.createFn = func(string) (*session.Context, error) {
		return nil, errors.New("backend unavailable")
	}
	mw := NewBrowserContextMiddleware(contexts, CookieConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

func TestUserIDFromContext_Missing_ReturnsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error for missing user ID")
	}
	ctx := ContextWithUserID(req.Context(), "")
	if _, err := UserIDFromContext(ctx); err == nil {
		t.Error("expected error for empty user ID")
	}
}
