package identity

import (
	"errors"
	"fmt"

	"github.com/hitoshi/ebuddy/internal/model"
)

// プロバイダーのエラーコード
const (
	CodeInvalidEmail          = "auth/invalid-email"
	CodeUserDisabled          = "auth/user-disabled"
	CodeUserNotFound          = "auth/user-not-found"
	CodeWrongPassword         = "auth/wrong-password"
	CodeInvalidCredential     = "auth/invalid-credential"
	CodeTooManyRequests       = "auth/too-many-requests"
	CodeNetworkRequestFailed  = "auth/network-request-failed"
	CodeInternalError         = "auth/internal-error"
	CodeAPIKeyNotValid        = "auth/api-key-not-valid"
	CodeConfigurationNotFound = "auth/configuration-not-found"
	CodeEmailAlreadyInUse     = "auth/email-already-in-use"
	CodeOperationNotAllowed   = "auth/operation-not-allowed"
	CodeWeakPassword          = "auth/weak-password"
	CodeMissingPassword       = "auth/missing-password"
	CodeUserTokenExpired      = "auth/user-token-expired"
	CodeInvalidUserToken      = "auth/invalid-user-token"
	CodeNoCurrentUser         = "auth/no-current-user"
)

// ErrNoCurrentUser はプロバイダーセッションが存在しない場合のエラー。
var ErrNoCurrentUser = &AuthError{Code: CodeNoCurrentUser, Message: "no user is signed in"}

// AuthError はプロバイダーが返したエラーコードを保持する。
type AuthError struct {
	Code    string
	Message string
	Err     error
}

// NewAuthError はAuthErrorを生成する。
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: %s", e.Code)
	}
	return fmt.Sprintf("identity: %s (%s)", e.Message, e.Code)
}

// Unwrap は原因となったエラーを返す。
func (e *AuthError) Unwrap() error { return e.Err }

// Is はコードが一致するAuthErrorを同一とみなす。
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Kind はエラーコードからエラー分類を返す。
func (e *AuthError) Kind() model.ErrorKind {
	switch e.Code {
	case CodeNetworkRequestFailed:
		return model.KindNetwork
	case CodeAPIKeyNotValid, CodeConfigurationNotFound, CodeOperationNotAllowed:
		return model.KindProviderConfiguration
	case CodeInvalidEmail, CodeUserDisabled, CodeUserNotFound, CodeWrongPassword,
		CodeInvalidCredential, CodeTooManyRequests, CodeEmailAlreadyInUse,
		CodeWeakPassword, CodeMissingPassword, CodeUserTokenExpired,
		CodeInvalidUserToken, CodeNoCurrentUser:
		return model.KindCredential
	default:
		return model.KindUnknown
	}
}

// CodeOf はエラーチェーンからプロバイダーのエラーコードを取り出す。
// AuthErrorを含まない場合は空文字を返す。
func CodeOf(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsSessionLoss はリフレッシュ失敗がセッションの喪失を意味するコードかどうかを返す。
func IsSessionLoss(err error) bool {
	switch CodeOf(err) {
	case CodeUserTokenExpired, CodeInvalidUserToken, CodeUserDisabled, CodeUserNotFound:
		return true
	}
	return false
}

// NetworkError はトランスポート層の失敗をAuthErrorに変換する。
func NetworkError(err error) *AuthError {
	return &AuthError{Code: CodeNetworkRequestFailed, Message: "network request failed", Err: err}
}
