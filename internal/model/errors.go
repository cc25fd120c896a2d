package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。
type ErrorKind string

// エラー分類
const (
	KindCredential            ErrorKind = "credential"
	KindNetwork               ErrorKind = "network"
	KindProviderConfiguration ErrorKind = "provider_configuration"
	KindNotFound              ErrorKind = "not_found"
	KindValidation            ErrorKind = "validation"
	KindUnknown               ErrorKind = "unknown"
)

// KindError は分類を持つエラーが実装するインターフェース。
type KindError interface {
	error
	Kind() ErrorKind
}

// KindOf はエラーチェーンから分類を取り出す。分類を持たない場合はKindUnknownを返す。
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke KindError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return KindUnknown
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeInvalidBody     = "INVALID_BODY"
	ErrCodeInvalidProfile  = "INVALID_PROFILE"
	ErrCodeNoUserID        = "NO_USER_ID"
	ErrCodeProviderMissing = "PROVIDER_MISCONFIGURED"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "profile",
		Action:   "Check the user ID or sign in again.",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "Sign in and retry with a valid bearer token.",
	}
}

// NewForbiddenError は他ユーザーのプロフィールへアクセスしようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You can only access your own profile",
		Category: "auth",
		Action:   "Use the user ID of the signed-in account.",
	}
}

// NewInvalidBodyError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidBodyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  fmt.Sprintf("Invalid request body: %s", reason),
		Category: "validation",
		Action:   "Send a JSON object with name and/or email.",
	}
}

// NewInvalidProfileError はプロフィールの値が不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  reason,
		Category: "validation",
		Action:   "Correct the highlighted field and try again.",
	}
}

// ValidationError はクライアント側の入力検証エラー。ストアには到達しない。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Kind はKindValidationを返す。
func (e *ValidationError) Kind() ErrorKind { return KindValidation }
