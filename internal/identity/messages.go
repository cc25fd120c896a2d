package identity

import "strings"

const configurationNotSetUpMessage = "Firebase Authentication is not properly set up. You need to enable Email/Password authentication in Firebase Console."

var loginMessages = map[string]string{
	CodeInvalidEmail:          "Invalid email address format.",
	CodeUserDisabled:          "This user account has been disabled.",
	CodeUserNotFound:          "No account found with this email. Please check your email or sign up.",
	CodeWrongPassword:         "Incorrect password. Please try again.",
	CodeTooManyRequests:       "Too many failed login attempts. Please try again later.",
	CodeNetworkRequestFailed:  "Network error. Please check your internet connection.",
	CodeInternalError:         "An internal error occurred. Please try again later.",
	CodeAPIKeyNotValid:        "Firebase configuration error: Invalid API key. Please contact the administrator.",
	CodeConfigurationNotFound: configurationNotSetUpMessage,
}

var registerMessages = map[string]string{
	CodeEmailAlreadyInUse:     "This email is already registered. Please use a different email or try logging in.",
	CodeInvalidEmail:          "Invalid email address format.",
	CodeOperationNotAllowed:   "Email/password registration is not enabled. Please contact the administrator.",
	CodeWeakPassword:          "Password is too weak. Please use a stronger password.",
	CodeNetworkRequestFailed:  "Network error. Please check your internet connection.",
	CodeInternalError:         "An internal error occurred. Please try again later.",
	CodeAPIKeyNotValid:        "Firebase configuration error: Invalid API key. Please contact the administrator.",
	CodeConfigurationNotFound: configurationNotSetUpMessage,
}

// デフォルトメッセージ
const (
	DefaultLoginMessage    = "Login failed. Please check your credentials and try again."
	DefaultRegisterMessage = "Registration failed. Please try again."
)

// LoginErrorMessage はログイン時のエラーコードをユーザー向けメッセージに変換する。
func LoginErrorMessage(code string) string {
	return lookupMessage(loginMessages, code, DefaultLoginMessage)
}

// RegisterErrorMessage は登録時のエラーコードをユーザー向けメッセージに変換する。
func RegisterErrorMessage(code string) string {
	return lookupMessage(registerMessages, code, DefaultRegisterMessage)
}

func lookupMessage(table map[string]string, code, fallback string) string {
	if msg, ok := table[code]; ok {
		return msg
	}
	if strings.Contains(code, "configuration-not-found") || strings.Contains(code, "CONFIGURATION_NOT_FOUND") {
		return configurationNotSetUpMessage
	}
	return fallback
}

// IsConfigurationMessage はメッセージがプロバイダー設定の問題を示すかどうかを返す。
// 画面ではセットアップ手順への案内を追加表示する。
func IsConfigurationMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return msg == configurationNotSetUpMessage ||
		strings.Contains(lower, "configuration") ||
		strings.Contains(lower, "not properly set up")
}
