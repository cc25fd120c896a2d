package auth

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/ebuddy/internal/model"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// フォーム検証メッセージ
const (
	MsgEmailRequired       = "Email is required"
	MsgEmailInvalid        = "Invalid email address"
	MsgPasswordRequired    = "Password is required"
	MsgPasswordTooShort    = "Password must be at least 6 characters"
	MsgNameRequired        = "Name is required"
	MsgConfirmRequired     = "Please confirm your password"
	MsgPasswordsDoNotMatch = "The passwords do not match"
)

// ValidEmail はメールアドレスの形式が正しいかどうかを返す。
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// FieldErrors はフィールド名からエラーメッセージへのマップ。
// 入力検証の失敗はストアにもプロバイダーにも到達しない。
type FieldErrors map[string]string

// Error はerrorインターフェースを実装する。
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// Kind はKindValidationを返す。
func (fe FieldErrors) Kind() model.ErrorKind { return model.KindValidation }

// LoginForm はログインフォームの入力。
type LoginForm struct {
	Email    string
	Password string
}

// Validate はログインフォームを検証する。問題がなければnilを返す。
func (f LoginForm) Validate() FieldErrors {
	errs := FieldErrors{}
	validateEmail(errs, f.Email)
	validatePassword(errs, f.Password)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// RegisterForm は登録フォームの入力。
type RegisterForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate は登録フォームを検証する。問題がなければnilを返す。
func (f RegisterForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = MsgNameRequired
	}
	validateEmail(errs, f.Email)
	validatePassword(errs, f.Password)
	switch {
	case f.ConfirmPassword == "":
		errs["confirmPassword"] = MsgConfirmRequired
	case f.ConfirmPassword != f.Password:
		errs["confirmPassword"] = MsgPasswordsDoNotMatch
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateEmail(errs FieldErrors, email string) {
	switch {
	case email == "":
		errs["email"] = MsgEmailRequired
	case !ValidEmail(email):
		errs["email"] = MsgEmailInvalid
	}
}

func validatePassword(errs FieldErrors, password string) {
	switch {
	case password == "":
		errs["password"] = MsgPasswordRequired
	case utf8.RuneCountInString(password) < minPasswordLength:
		errs["password"] = MsgPasswordTooShort
	}
}
