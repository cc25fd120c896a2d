// Package profile はユーザープロフィールの取得・更新を行うゲートウェイを提供する。
// 実モードではプロフィールAPIを呼び出し、モックモードではネットワークを使わずにプロフィールを合成する。
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/security"
)

// 動作モード
const (
	ModeHTTP = "http"
	ModeMock = "mock"
)

// 結果（メトリクスのoutcomeラベル）
const (
	OutcomeSuccess  = "success"
	OutcomeSeeded   = "seeded"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// maxResponseSize はレスポンスボディの読み込み上限。
const maxResponseSize = 1 << 20

// Caller はゲートウェイの呼び出し元のIDプロバイダー情報。
type Caller interface {
	// CurrentIDToken はBearerトークンに使うIDトークンを返す。
	CurrentIDToken(ctx context.Context) (string, bool)
	// DisplayFields はプロフィール合成に使う表示名とメールアドレスを返す。
	DisplayFields() (name, email string)
}

// Recorder はゲートウェイ呼び出しのメトリクスを記録する。
type Recorder interface {
	RecordProfileRequest(operation, mode, outcome string, d time.Duration)
}

// Config はGatewayの設定。
type Config struct {
	BaseURL        string
	UseMock        bool
	MockLatency    time.Duration
	SeedOnNotFound bool
	Timeout        time.Duration
	// StaticToken が設定されている場合は呼び出し元のIDトークンの代わりに使用する。
	StaticToken string
	HTTPClient  *http.Client
	Recorder    Recorder
	Tracer      trace.Tracer
	Now         func() time.Time
}

// Gateway はプロフィールの取得・更新を行う。
type Gateway struct {
	cfg    Config
	client *http.Client
	tracer trace.Tracer
	now    func() time.Time

	mu   sync.Mutex
	mock map[string]*model.UserProfile
}

// New はGatewayを生成する。
func New(cfg Config) (*Gateway, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("ebuddy/profile")
	}

	g := &Gateway{
		cfg:    cfg,
		tracer: tracer,
		now:    cfg.Now,
		mock:   make(map[string]*model.UserProfile),
	}
	if cfg.UseMock {
		return g, nil
	}

	g.client = cfg.HTTPClient
	if g.client == nil {
		c, err := security.NewOutboundGuard().NewClient(cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("profile API client: %w", err)
		}
		g.client = c
	}
	return g, nil
}

// Mode は動作モードを返す。
func (g *Gateway) Mode() string {
	if g.cfg.UseMock {
		return ModeMock
	}
	return ModeHTTP
}

// FetchProfile はプロフィールを取得する。
// バックエンドにレコードがなくSeedOnNotFoundが有効な場合は、表示名とメールアドレスから
// デフォルトのプロフィールを生成し、ベストエフォートで保存してから返す。
func (g *Gateway) FetchProfile(ctx context.Context, caller Caller, userID string) (p *model.UserProfile, err error) {
	ctx, span := g.startSpan(ctx, "profile.FetchProfile", userID)
	start := time.Now()
	outcome := OutcomeSuccess
	defer func() {
		g.finish(span, "fetch", outcome, start, err)
	}()

	if g.cfg.UseMock {
		return g.mockCall(ctx, caller, userID, nil)
	}

	p, err = g.get(ctx, caller, userID)
	if err == nil {
		return p, nil
	}
	if !IsNotFound(err) {
		outcome = OutcomeError
		return nil, err
	}
	if !g.cfg.SeedOnNotFound {
		outcome = OutcomeNotFound
		return nil, err
	}

	outcome = OutcomeSeeded
	name, email := caller.DisplayFields()
	seed := model.NewDefaultProfile(userID, name, email, g.now())
	slog.Warn("profile not found, seeding default profile",
		slog.String("user_id", userID),
	)
	span.AddEvent("profile.seeded")

	saved, putErr := g.put(ctx, caller, userID, model.NewProfilePatch(seed.Name, seed.Email))
	if putErr != nil {
		slog.Warn("failed to persist seeded profile",
			slog.String("user_id", userID),
			slog.String("error", putErr.Error()),
		)
		return seed, nil
	}
	return saved, nil
}

// UpdateProfile はプロフィールを部分更新する。
// バックエンドにレコードがなくSeedOnNotFoundが有効な場合は、デフォルトのプロフィールに
// パッチを適用した結果を返す。
func (g *Gateway) UpdateProfile(ctx context.Context, caller Caller, userID string, patch model.ProfilePatch) (p *model.UserProfile, err error) {
	ctx, span := g.startSpan(ctx, "profile.UpdateProfile", userID)
	start := time.Now()
	outcome := OutcomeSuccess
	defer func() {
		g.finish(span, "update", outcome, start, err)
	}()

	if g.cfg.UseMock {
		return g.mockCall(ctx, caller, userID, &patch)
	}

	p, err = g.put(ctx, caller, userID, patch)
	if err == nil {
		return p, nil
	}
	if !IsNotFound(err) {
		outcome = OutcomeError
		return nil, err
	}
	if !g.cfg.SeedOnNotFound {
		outcome = OutcomeNotFound
		return nil, err
	}

	outcome = OutcomeSeeded
	name, email := caller.DisplayFields()
	now := g.now()
	seed := model.NewDefaultProfile(userID, name, email, now)
	slog.Warn("profile not found on update, returning seeded profile",
		slog.String("user_id", userID),
	)
	return model.ApplyPatch(seed, patch, now), nil
}

// mockCall はネットワークを使わずにプロフィールを返す。
// 直前のモックレコード（なければ表示名から合成したもの）にパッチを後勝ちでマージし、
// updatedAtを呼び出し時刻に更新する。
func (g *Gateway) mockCall(ctx context.Context, caller Caller, userID string, patch *model.ProfilePatch) (*model.UserProfile, error) {
	if g.cfg.MockLatency > 0 {
		timer := time.NewTimer(g.cfg.MockLatency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			msg := FetchFailedMessage
			if patch != nil {
				msg = UpdateFailedMessage
			}
			return nil, networkError(msg, ctx.Err())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	base, ok := g.mock[userID]
	if !ok {
		name, email := caller.DisplayFields()
		base = model.NewDefaultProfile(userID, name, email, now)
	}
	var p model.ProfilePatch
	if patch != nil {
		p = *patch
	}
	next := model.ApplyPatch(base, p, now)
	next.ID = userID
	g.mock[userID] = next
	return next.Clone(), nil
}

type userEnvelope struct {
	User *model.UserProfile `json:"user"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

func (g *Gateway) get(ctx context.Context, caller Caller, userID string) (*model.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userURL(userID), nil)
	if err != nil {
		return nil, networkError(FetchFailedMessage, err)
	}
	return g.do(ctx, caller, req, FetchFailedMessage)
}

func (g *Gateway) put(ctx context.Context, caller Caller, userID string, patch model.ProfilePatch) (*model.UserProfile, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, networkError(UpdateFailedMessage, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.userURL(userID), bytes.NewReader(body))
	if err != nil {
		return nil, networkError(UpdateFailedMessage, err)
	}
	return g.do(ctx, caller, req, UpdateFailedMessage)
}

func (g *Gateway) do(ctx context.Context, caller Caller, req *http.Request, fallback string) (*model.UserProfile, error) {
	req.Header.Set("Content-Type", "application/json")
	if token := g.bearerToken(ctx, caller); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Error("profile API request failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)
		return nil, networkError(fallback, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, networkError(fallback, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fallback
		var env messageEnvelope
		if json.Unmarshal(data, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return nil, statusError(resp.StatusCode, msg)
	}

	var env userEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.User == nil {
		if err == nil {
			err = fmt.Errorf("response has no user")
		}
		return nil, networkError(fallback, err)
	}
	return env.User, nil
}

func (g *Gateway) bearerToken(ctx context.Context, caller Caller) string {
	if g.cfg.StaticToken != "" {
		return g.cfg.StaticToken
	}
	if caller == nil {
		return ""
	}
	token, _ := caller.CurrentIDToken(ctx)
	return token
}

func (g *Gateway) userURL(userID string) string {
	return g.cfg.BaseURL + "/" + url.PathEscape(userID)
}

func (g *Gateway) startSpan(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("profile.mode", g.Mode()),
		attribute.String("user.id", userID),
	))
}

func (g *Gateway) finish(span trace.Span, operation, outcome string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if outcome == OutcomeSuccess {
			outcome = OutcomeError
		}
	}
	span.SetAttributes(attribute.String("profile.outcome", outcome))
	span.End()

	if g.cfg.Recorder != nil {
		g.cfg.Recorder.RecordProfileRequest(operation, g.Mode(), outcome, time.Since(start))
	}
}
