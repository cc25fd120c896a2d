package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/html"

	"github.com/hitoshi/ebuddy/internal/account"
	"github.com/hitoshi/ebuddy/internal/auth"
	"github.com/hitoshi/ebuddy/internal/identity/local"
	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/profile"
	"github.com/hitoshi/ebuddy/internal/security"
	"github.com/hitoshi/ebuddy/internal/session"
)

// testEnv はページルーター全体をローカルIDバックエンドとモックゲートウェイで動かすテスト環境。
type testEnv struct {
	server  *httptest.Server
	client  *http.Client
	manager *session.Manager
	backend *local.Backend
}

func newTestEnv(t *testing.T, opts ...func(*RouterDeps)) *testEnv {
	t.Helper()

	backend, err := local.New(local.Config{SigningKey: "handler-test-key", BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	gateway, err := profile.New(profile.Config{UseMock: true})
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	renderer, err := NewRenderer(DefaultHelpURL)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	manager := session.NewManager(session.ManagerConfig{Backend: backend})

	deps := &RouterDeps{
		Contexts:       manager,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthService:    auth.NewService(nil),
		AccountService: account.NewService(gateway, security.NewTextSanitizer()),
		Renderer:       renderer,
		Reloader:       manager,
	}
	for _, opt := range opts {
		opt(deps)
	}

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(func() {
		srv.Close()
		manager.Close()
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	return &testEnv{
		server:  srv,
		client:  &http.Client{Jar: jar},
		manager: manager,
		backend: backend,
	}
}

// get はパスをGETし、レスポンスと解析済みのHTMLを返す。
func (e *testEnv) get(t *testing.T, path string) (*http.Response, *html.Node) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, parseBody(t, resp)
}

// post はCSRFトークンを付けてフォームを送信する。リダイレクトは追跡する。
func (e *testEnv) post(t *testing.T, path string, values url.Values) (*http.Response, *html.Node) {
	t.Helper()
	if values == nil {
		values = url.Values{}
	}
	values.Set(middleware.CSRFFormField, e.csrfToken(t))
	resp, err := e.client.PostForm(e.server.URL+path, values)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, parseBody(t, resp)
}

// csrfToken はトップページのmetaタグからCSRFトークンを取得する。
func (e *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	_, doc := e.get(t, "/")
	meta := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "meta" && attr(n, "name") == "csrf-token"
	})
	if meta == nil || attr(meta, "content") == "" {
		t.Fatal("csrf-token meta tag not found")
	}
	return attr(meta, "content")
}

// browserContext はクッキージャーのコンテキストIDに対応するブラウザコンテキストを返す。
func (e *testEnv) browserContext(t *testing.T) *session.Context {
	t.Helper()
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == middleware.ContextCookieName {
			bc, ok := e.manager.Get(c.Value)
			if !ok {
				t.Fatalf("browser context %q not found", c.Value)
			}
			return bc
		}
	}
	t.Fatal("browser context cookie not set")
	return nil
}

// register は登録フォームを送信する。
func (e *testEnv) register(t *testing.T, name, email, password string) (*http.Response, *html.Node) {
	t.Helper()
	return e.post(t, "/register", url.Values{
		"name":            {name},
		"email":           {email},
		"password":        {password},
		"confirmPassword": {password},
	})
}

func parseBody(t *testing.T, resp *http.Response) *html.Node {
	t.Helper()
	defer resp.Body.Close()
	doc, err := html.Parse(resp.Body)
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func byID(doc *html.Node, id string) *html.Node {
	return findFirst(doc, func(n *html.Node) bool { return attr(n, "id") == id })
}

func fieldError(doc *html.Node, field string) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "p" && attr(n, "data-field") == field
	})
	if n == nil {
		return ""
	}
	return textContent(n)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
