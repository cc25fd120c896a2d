package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*.css static/*.js
var staticFS embed.FS

// ページ名
const (
	pageHome      = "home"
	pageLogin     = "login"
	pageRegister  = "register"
	pageDashboard = "dashboard"
	pageProfile   = "profile"
	pageNotFound  = "notfound"
	pageError     = "error"
)

// テーマ
const (
	ThemeLight      = "light"
	ThemeDark       = "dark"
	themeCookieName = "ebuddy_theme"
)

// DefaultHelpURL はプロバイダー設定の手順を案内するURL。
const DefaultHelpURL = "https://github.com/yourusername/ebuddy-frontend#firebase-configuration"

// pageData は全ページ共通のテンプレートデータ。
type pageData struct {
	Theme         string
	NextTheme     string
	Path          string
	CSRFToken     string
	Authenticated bool
	User          *model.AuthUser
	Notice        string
	Year          int
	HelpURL       string
	Content       any
}

// Renderer はレイアウトとページテンプレートを組み合わせてHTMLを描画する。
type Renderer struct {
	pages   map[string]*template.Template
	now     func() time.Time
	helpURL string
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer(helpURL string) (*Renderer, error) {
	if helpURL == "" {
		helpURL = DefaultHelpURL
	}
	r := &Renderer{
		pages:   make(map[string]*template.Template),
		now:     time.Now,
		helpURL: helpURL,
	}
	for _, name := range []string{pageHome, pageLogin, pageRegister, pageDashboard, pageProfile, pageNotFound, pageError} {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("テンプレートの解析に失敗しました (%s): %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render はページを描画する。バッファに描画してから書き込むため、失敗時に途中までのHTMLは送られない。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, content any) {
	t, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := rd.pageData(r, content)
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (rd *Renderer) pageData(r *http.Request, content any) pageData {
	theme := themeFromRequest(r)
	data := pageData{
		Theme:     theme,
		NextTheme: ThemeDark,
		Path:      r.URL.Path,
		CSRFToken: middleware.CSRFToken(r.Context()),
		Year:      rd.now().Year(),
		HelpURL:   rd.helpURL,
		Content:   content,
	}
	if theme == ThemeDark {
		data.NextTheme = ThemeLight
	}
	if bc, ok := middleware.BrowserContextFromContext(r.Context()); ok {
		st := bc.Store.Snapshot()
		data.User = st.Auth.User
		data.Authenticated = st.Session().IsAuthenticated
		if sync := bc.Sync(); sync != nil {
			data.Notice = sync.LastError()
		}
	}
	return data
}

// themeFromRequest はテーマCookieを読み取る。未設定や不正な値はライトテーマとする。
func themeFromRequest(r *http.Request) string {
	if c, err := r.Cookie(themeCookieName); err == nil && c.Value == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// StaticHandler は埋め込みの静的ファイルを/static/配下で配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
