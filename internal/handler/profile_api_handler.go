package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/user"
)

// maxProfileBodySize はPUTリクエストボディの上限。
const maxProfileBodySize = 1 << 20

// ProfileServiceInterface はプロフィールAPIハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.UserProfile, error)
	DeleteProfile(ctx context.Context, id string) error
}

var _ ProfileServiceInterface = (*user.Service)(nil)

// ProfileAPIHandler はプロフィールAPIのHTTPハンドラー。
type ProfileAPIHandler struct {
	service ProfileServiceInterface
}

// NewProfileAPIHandler はProfileAPIHandlerを生成する。
func NewProfileAPIHandler(service ProfileServiceInterface) *ProfileAPIHandler {
	return &ProfileAPIHandler{service: service}
}

// profileResponse は成功時のレスポンス。
type profileResponse struct {
	User *model.UserProfile `json:"user"`
}

// profilePatchRequest はPUTのリクエストボディ。
// 省略したフィールドは変更しない。id、createdAt、updatedAtは無視する。
type profilePatchRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// GetProfile は指定IDのプロフィールを返す。
// GET /api/user/{id}
func (h *ProfileAPIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{User: p})
}

// UpdateProfile は指定IDのプロフィールを部分更新する。存在しない場合は作成する。
// PUT /api/user/{id}
func (h *ProfileAPIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req profilePatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProfileBodySize)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("request body must be a JSON object"))
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), id, model.ProfilePatch{Name: req.Name, Email: req.Email})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{User: p})
}

// DeleteProfile は指定IDのプロフィールを削除する。
// DELETE /api/user/{id}
func (h *ProfileAPIHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteProfile(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidBody, model.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
