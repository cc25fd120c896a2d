package profile

import (
	"errors"
	"net/http"

	"github.com/hitoshi/ebuddy/internal/model"
)

// エラー時のデフォルトメッセージ
const (
	FetchFailedMessage  = "Failed to fetch user data"
	UpdateFailedMessage = "Failed to update user data"
)

// Error はゲートウェイ呼び出しの失敗を表す。
// Messageはバックエンドが返したメッセージ、またはデフォルトメッセージ。
type Error struct {
	Category model.ErrorKind
	Status   int
	Message  string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error { return e.Err }

// Kind はエラー分類を返す。
func (e *Error) Kind() model.ErrorKind { return e.Category }

// IsNotFound はバックエンドにプロフィールが存在しないことを示すエラーかどうかを返す。
func IsNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Category == model.KindNotFound
}

// statusError はHTTPステータスからErrorを生成する。
func statusError(status int, message string) *Error {
	kind := model.KindNetwork
	switch {
	case status == http.StatusNotFound:
		kind = model.KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = model.KindCredential
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = model.KindValidation
	}
	return &Error{Category: kind, Status: status, Message: message}
}

func networkError(message string, err error) *Error {
	return &Error{Category: model.KindNetwork, Message: message, Err: err}
}
