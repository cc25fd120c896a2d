package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ebuddy/internal/account"
	"github.com/hitoshi/ebuddy/internal/auth"
	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/session"
	"github.com/hitoshi/ebuddy/internal/store"
)

// AuthServiceInterface はページハンドラーが必要とする認証ユースケース。
type AuthServiceInterface interface {
	Login(ctx context.Context, p auth.Provider, d auth.Dispatcher, form auth.LoginForm) error
	Register(ctx context.Context, p auth.Provider, d auth.Dispatcher, form auth.RegisterForm) error
	Logout(ctx context.Context, p auth.Provider, d auth.Dispatcher) error
}

// AccountServiceInterface はページハンドラーが必要とするプロフィールユースケース。
type AccountServiceInterface interface {
	FetchUserData(ctx context.Context, c account.Caller, d auth.Dispatcher, userID string) (*model.UserProfile, error)
	UpdateUserData(ctx context.Context, c account.Caller, d auth.Dispatcher, patch model.ProfilePatch, userID string) (*model.UserProfile, error)
}

var (
	_ AuthServiceInterface    = (*auth.Service)(nil)
	_ AccountServiceInterface = (*account.Service)(nil)
)

// WebHandlerConfig はページハンドラーの設定。
type WebHandlerConfig struct {
	CookieSecure bool
	CookieDomain string
}

// WebHandler はHTMLページとフォーム送信のハンドラー。
type WebHandler struct {
	auth     AuthServiceInterface
	account  AccountServiceInterface
	renderer *Renderer
	config   WebHandlerConfig
}

// NewWebHandler はWebHandlerを生成する。
func NewWebHandler(authSvc AuthServiceInterface, accountSvc AccountServiceInterface, renderer *Renderer, config WebHandlerConfig) *WebHandler {
	return &WebHandler{
		auth:     authSvc,
		account:  accountSvc,
		renderer: renderer,
		config:   config,
	}
}

// formView はログイン・登録フォームの描画データ。
type formView struct {
	Values     map[string]string
	Fields     auth.FieldErrors
	Error      string
	ConfigHelp bool
	HelpURL    string
}

// dashboardView はダッシュボードの描画データ。
type dashboardView struct {
	DisplayName string
	Name        string
	Email       string
	ShortID     string
	Error       string
}

// profileView はプロフィール画面の描画データ。
type profileView struct {
	Profile  *model.UserProfile
	Name     string
	Email    string
	Loading  bool
	Fetching bool
	Updating bool
	Error    string
	Updated  bool
}

// errorView はエラーページの描画データ。
type errorView struct {
	ProviderError  bool
	ConfigNotFound bool
	RetryPath      string
}

// Home はトップページを描画する。
// GET /
func (h *WebHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageHome, nil)
}

// LoginPage はログインフォームを描画する。
// GET /login
func (h *WebHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageLogin, h.newFormView(nil))
}

// Login はログインフォームの送信を処理する。成功時はダッシュボードへリダイレクトする。
// POST /login
func (h *WebHandler) Login(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	form := auth.LoginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	err := h.auth.Login(r.Context(), bc.Client, bc.Store, form)
	if err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	view := h.newFormView(map[string]string{"email": form.Email})
	status := h.applyFormError(&view, err)
	h.renderer.Render(w, r, status, pageLogin, view)
}

// RegisterPage は登録フォームを描画する。
// GET /register
func (h *WebHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageRegister, h.newFormView(nil))
}

// Register は登録フォームの送信を処理する。成功時はダッシュボードへリダイレクトする。
// POST /register
func (h *WebHandler) Register(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	form := auth.RegisterForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	err := h.auth.Register(r.Context(), bc.Client, bc.Store, form)
	if err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	view := h.newFormView(map[string]string{"name": form.Name, "email": form.Email})
	status := h.applyFormError(&view, err)
	h.renderer.Render(w, r, status, pageRegister, view)
}

// Logout はサインアウトする。失敗時はダッシュボードにエラーを表示する。
// POST /logout
func (h *WebHandler) Logout(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	if err := h.auth.Logout(r.Context(), bc.Client, bc.Store); err != nil {
		slog.Warn("logout failed",
			slog.String("context_id", bc.ID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Dashboard はダッシュボードを描画する。未認証の場合はログインページへリダイレクトする。
// GET /dashboard
func (h *WebHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	st := bc.Store.Snapshot()
	user := st.Auth.User
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	view := dashboardView{
		DisplayName: user.DisplayName,
		Name:        user.DisplayName,
		Email:       user.Email,
		ShortID:     user.UID,
		Error:       st.Auth.Logout.Error,
	}
	if view.DisplayName == "" {
		view.DisplayName = "User"
	}
	if view.Name == "" {
		view.Name = "Not set"
	}
	if len(view.ShortID) > 8 {
		view.ShortID = view.ShortID[:8]
	}
	h.renderer.Render(w, r, http.StatusOK, pageDashboard, view)
}

// ProfilePage はプロフィール画面を描画する。
// GET /profile
func (h *WebHandler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}
	view := newProfileView(bc.Store.Snapshot())
	view.Updated = r.URL.Query().Get("updated") == "1"
	h.renderer.Render(w, r, http.StatusOK, pageProfile, view)
}

// FetchProfile はプロフィールを取得する。
// POST /profile/fetch
func (h *WebHandler) FetchProfile(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	if _, err := h.account.FetchUserData(r.Context(), bc.Client, bc.Store, ""); err != nil {
		h.renderProfileError(w, r, bc, err)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// UpdateProfile はプロフィールを更新する。成功時は完了メッセージ付きでプロフィール画面に戻る。
// POST /profile
func (h *WebHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	bc, ok := h.browserContext(w, r)
	if !ok {
		return
	}

	patch := model.NewProfilePatch(r.PostFormValue("name"), r.PostFormValue("email"))
	if _, err := h.account.UpdateUserData(r.Context(), bc.Client, bc.Store, patch, ""); err != nil {
		h.renderProfileError(w, r, bc, err)
		return
	}
	http.Redirect(w, r, "/profile?updated=1", http.StatusSeeOther)
}

// SetTheme はテーマCookieを設定して元のページに戻る。
// POST /theme
func (h *WebHandler) SetTheme(w http.ResponseWriter, r *http.Request) {
	theme := r.PostFormValue("theme")
	if theme != ThemeLight && theme != ThemeDark {
		h.renderer.Render(w, r, http.StatusBadRequest, pageError, errorView{RetryPath: "/"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     themeCookieName,
		Value:    theme,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeReturnPath(r.PostFormValue("return")), http.StatusSeeOther)
}

// NotFound は404ページを描画する。
func (h *WebHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusNotFound, pageNotFound, nil)
}

// RenderError はエラーページを描画する。プロバイダー設定の問題であればトラブルシューティング手順を表示する。
func (h *WebHandler) RenderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	view := errorView{RetryPath: "/"}
	if r.Method == http.MethodGet {
		view.RetryPath = r.URL.Path
	}
	if err != nil {
		msg := err.Error()
		code := identity.CodeOf(err)
		view.ProviderError = model.KindOf(err) == model.KindProviderConfiguration ||
			strings.Contains(msg, "Firebase") || strings.Contains(msg, "auth/")
		view.ConfigNotFound = strings.Contains(code, "configuration-not-found") ||
			strings.Contains(msg, "configuration-not-found") || strings.Contains(msg, "CONFIGURATION_NOT_FOUND")
	}
	h.renderer.Render(w, r, status, pageError, view)
}

// PanicPage はpanic回復時に描画するエラーページのハンドラー。
func (h *WebHandler) PanicPage(w http.ResponseWriter, r *http.Request) {
	h.RenderError(w, r, http.StatusInternalServerError, nil)
}

func (h *WebHandler) browserContext(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	bc, ok := middleware.BrowserContextFromContext(r.Context())
	if !ok {
		slog.Error("browser context missing from request", slog.String("path", r.URL.Path))
		h.RenderError(w, r, http.StatusInternalServerError, nil)
		return nil, false
	}
	return bc, true
}

func (h *WebHandler) newFormView(values map[string]string) formView {
	if values == nil {
		values = map[string]string{}
	}
	return formView{Values: values, Fields: auth.FieldErrors{}, HelpURL: h.renderer.helpURL}
}

// applyFormError はユースケースのエラーをフォームに反映し、レスポンスのステータスを返す。
func (h *WebHandler) applyFormError(view *formView, err error) int {
	var fields auth.FieldErrors
	if errors.As(err, &fields) {
		view.Fields = fields
		return http.StatusUnprocessableEntity
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		view.Error = authErr.Message
		view.ConfigHelp = authErr.Kind() == model.KindProviderConfiguration ||
			identity.IsConfigurationMessage(authErr.Message)
		return statusForKind(authErr.Kind())
	}

	view.Error = err.Error()
	return http.StatusInternalServerError
}

func (h *WebHandler) renderProfileError(w http.ResponseWriter, r *http.Request, bc *session.Context, err error) {
	view := newProfileView(bc.Store.Snapshot())
	view.Error = err.Error()
	var ve *model.ValidationError
	status := http.StatusBadGateway
	if errors.As(err, &ve) {
		status = http.StatusUnprocessableEntity
		view.Error = ve.Message
		view.Name = r.PostFormValue("name")
		view.Email = r.PostFormValue("email")
	}
	h.renderer.Render(w, r, status, pageProfile, view)
}

func newProfileView(st store.State) profileView {
	view := profileView{
		Profile:  st.User.Profile,
		Loading:  st.User.Loading(),
		Fetching: st.User.Fetch.Pending,
		Updating: st.User.Update.Pending,
		Error:    st.User.Error,
	}
	if st.User.Profile != nil {
		view.Name = st.User.Profile.Name
		view.Email = st.User.Profile.Email
	}
	return view
}

// statusForKind はエラー分類からフォーム再表示時のステータスを決める。
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindCredential:
		return http.StatusUnauthorized
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindNetwork:
		return http.StatusBadGateway
	case model.KindProviderConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// safeReturnPath はリダイレクト先を同一オリジンのパスに限定する。
func safeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}
