// Package firebase はFirebase Identity Toolkit REST APIによるidentity.Backendの実装を提供する。
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/security"
)

// 本番エンドポイント
const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

// maxResponseSize はレスポンスボディの読み込み上限。
const maxResponseSize = 1 << 20

// Config はBackendの設定。
type Config struct {
	APIKey string
	// EmulatorHost が設定されている場合はAuthエミュレーター（host:port）に接続する。
	EmulatorHost string
	// IdentityToolkitURL とSecureTokenURL はエンドポイントを上書きする（テスト用）。
	IdentityToolkitURL string
	SecureTokenURL     string
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Backend はIdentity Toolkit REST APIクライアント。
type Backend struct {
	apiKey     string
	toolkitURL string
	secureURL  string
	client     *http.Client
	now        func() time.Time
}

// New はBackendを生成する。
func New(cfg Config) (*Backend, error) {
	toolkitURL := defaultIdentityToolkitURL
	secureURL := defaultSecureTokenURL
	if cfg.EmulatorHost != "" {
		toolkitURL = "http://" + cfg.EmulatorHost + "/identitytoolkit.googleapis.com/v1"
		secureURL = "http://" + cfg.EmulatorHost + "/securetoken.googleapis.com/v1"
	}
	if cfg.IdentityToolkitURL != "" {
		toolkitURL = strings.TrimRight(cfg.IdentityToolkitURL, "/")
	}
	if cfg.SecureTokenURL != "" {
		secureURL = strings.TrimRight(cfg.SecureTokenURL, "/")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		c, err := security.NewOutboundGuard().NewClient(toolkitURL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("identity toolkit client: %w", err)
		}
		client = c
	}

	return &Backend{
		apiKey:     cfg.APIKey,
		toolkitURL: toolkitURL,
		secureURL:  secureURL,
		client:     client,
		now:        time.Now,
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
		DisplayName   string `json:"displayName"`
		PhotoURL      string `json:"photoUrl"`
		PhoneNumber   string `json:"phoneNumber"`
		CreatedAt     string `json:"createdAt"`
		LastLoginAt   string `json:"lastLoginAt"`
	} `json:"users"`
}

type refreshResponse struct {
	ExpiresIn    string `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	UserID       string `json:"user_id"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword はaccounts:signInWithPasswordを呼び出す。
func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credential, error) {
	var resp tokenResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := b.postJSON(ctx, b.toolkitURL+"/accounts:signInWithPassword", req, &resp); err != nil {
		return nil, err
	}
	return b.credential(ctx, resp), nil
}

// SignUp はaccounts:signUpを呼び出す。
func (b *Backend) SignUp(ctx context.Context, email, password string) (*identity.Credential, error) {
	var resp tokenResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := b.postJSON(ctx, b.toolkitURL+"/accounts:signUp", req, &resp); err != nil {
		return nil, err
	}
	return b.credential(ctx, resp), nil
}

// UpdateProfile はaccounts:updateで表示名を更新する。
func (b *Backend) UpdateProfile(ctx context.Context, idToken, displayName string) (*identity.Credential, error) {
	req := map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": true,
	}
	var resp tokenResponse
	if err := b.postJSON(ctx, b.toolkitURL+"/accounts:update", req, &resp); err != nil {
		return nil, err
	}
	return &identity.Credential{
		User:   &identity.User{UID: resp.LocalID, Email: resp.Email, DisplayName: resp.DisplayName},
		Tokens: b.tokens(resp.IDToken, resp.RefreshToken, resp.ExpiresIn),
	}, nil
}

// Refresh はsecuretokenのtokenエンドポイントでIDトークンを更新する。
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*identity.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(b.secureURL+"/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := b.do(httpReq, &resp); err != nil {
		return nil, err
	}
	t := b.tokens(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	return &t, nil
}

// Revoke は何もしない。Identity Toolkitにクライアント側からのトークン無効化手段はなく、
// サインアウトはローカルセッションの破棄で完結する。
func (b *Backend) Revoke(ctx context.Context, refreshToken string) error {
	return nil
}

func (b *Backend) credential(ctx context.Context, resp tokenResponse) *identity.Credential {
	user := &identity.User{
		UID:         resp.LocalID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
	}
	cred := &identity.Credential{
		User:   user,
		Tokens: b.tokens(resp.IDToken, resp.RefreshToken, resp.ExpiresIn),
	}

	// 付帯情報（メール確認状態や作成日時）はaccounts:lookupから取得する。失敗しても認証は成立している。
	if err := b.lookup(ctx, resp.IDToken, user); err != nil {
		slog.Warn("accounts:lookup failed",
			slog.String("user_id", resp.LocalID),
			slog.String("error", err.Error()),
		)
	}
	return cred
}

func (b *Backend) lookup(ctx context.Context, idToken string, user *identity.User) error {
	var resp lookupResponse
	if err := b.postJSON(ctx, b.toolkitURL+"/accounts:lookup", map[string]string{"idToken": idToken}, &resp); err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		return fmt.Errorf("lookup returned no users")
	}
	u := resp.Users[0]
	if u.Email != "" {
		user.Email = u.Email
	}
	if u.DisplayName != "" {
		user.DisplayName = u.DisplayName
	}
	user.EmailVerified = u.EmailVerified
	user.PhotoURL = u.PhotoURL
	user.PhoneNumber = u.PhoneNumber
	user.CreatedAt = parseMillis(u.CreatedAt)
	user.LastLoginAt = parseMillis(u.LastLoginAt)
	return nil
}

func (b *Backend) tokens(idToken, refreshToken, expiresIn string) identity.Tokens {
	t := identity.Tokens{IDToken: idToken, RefreshToken: refreshToken}
	if idToken != "" {
		secs, err := strconv.Atoi(expiresIn)
		if err != nil || secs <= 0 {
			secs = 3600
		}
		t.ExpiresAt = b.now().Add(time.Duration(secs) * time.Second)
	}
	return t
}

func (b *Backend) endpoint(base string) string {
	if b.apiKey == "" {
		return base
	}
	return base + "?key=" + url.QueryEscape(b.apiKey)
}

func (b *Backend) postJSON(ctx context.Context, rawURL string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(rawURL), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *Backend) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return identity.NetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return identity.NetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if err := json.Unmarshal(data, &er); err != nil || er.Error.Message == "" {
			return &identity.AuthError{
				Code:    identity.CodeInternalError,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}
		return identity.NewAuthError(MapServerError(er.Error.Message), er.Error.Message)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &identity.AuthError{Code: identity.CodeInternalError, Message: "invalid response body", Err: err}
	}
	return nil
}

// serverErrorCodes はサーバーのエラーメッセージとauth/*コードの対応表。
var serverErrorCodes = map[string]string{
	"EMAIL_NOT_FOUND":             identity.CodeUserNotFound,
	"USER_NOT_FOUND":              identity.CodeUserNotFound,
	"INVALID_PASSWORD":            identity.CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":   identity.CodeInvalidCredential,
	"USER_DISABLED":               identity.CodeUserDisabled,
	"EMAIL_EXISTS":                identity.CodeEmailAlreadyInUse,
	"INVALID_EMAIL":               identity.CodeInvalidEmail,
	"MISSING_EMAIL":               identity.CodeInvalidEmail,
	"MISSING_PASSWORD":            identity.CodeMissingPassword,
	"WEAK_PASSWORD":               identity.CodeWeakPassword,
	"TOO_MANY_ATTEMPTS_TRY_LATER": identity.CodeTooManyRequests,
	"OPERATION_NOT_ALLOWED":       identity.CodeOperationNotAllowed,
	"PASSWORD_LOGIN_DISABLED":     identity.CodeOperationNotAllowed,
	"CONFIGURATION_NOT_FOUND":     identity.CodeConfigurationNotFound,
	"TOKEN_EXPIRED":               identity.CodeUserTokenExpired,
	"INVALID_ID_TOKEN":            identity.CodeInvalidUserToken,
	"INVALID_REFRESH_TOKEN":       identity.CodeInvalidUserToken,
	"MISSING_REFRESH_TOKEN":       identity.CodeInvalidUserToken,
}

// MapServerError はIdentity Toolkitのエラーメッセージをauth/*コードに変換する。
// メッセージは "WEAK_PASSWORD : Password should be at least 6 characters" のように
// 詳細が付加されることがあるため、" : " より前の部分で照合する。
func MapServerError(message string) string {
	key := message
	if i := strings.Index(key, " : "); i >= 0 {
		key = key[:i]
	}
	key = strings.TrimSpace(key)
	if code, ok := serverErrorCodes[key]; ok {
		return code
	}
	if strings.HasPrefix(message, "API key not valid") || key == "API_KEY_INVALID" {
		return identity.CodeAPIKeyNotValid
	}
	return identity.CodeInternalError
}

func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
