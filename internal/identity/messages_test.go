package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginErrorMessage(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"auth/invalid-email", "Invalid email address format."},
		{"auth/user-disabled", "This user account has been disabled."},
		{"auth/user-not-found", "No account found with this email. Please check your email or sign up."},
		{"auth/wrong-password", "Incorrect password. Please try again."},
		{"auth/too-many-requests", "Too many failed login attempts. Please try again later."},
		{"auth/network-request-failed", "Network error. Please check your internet connection."},
		{"auth/internal-error", "An internal error occurred. Please try again later."},
		{"auth/api-key-not-valid", "Firebase configuration error: Invalid API key. Please contact the administrator."},
		{"auth/configuration-not-found", configurationNotSetUpMessage},
		{"auth/email-already-in-use", DefaultLoginMessage},
		{"", DefaultLoginMessage},
		{"auth/something-new", DefaultLoginMessage},
		{"Firebase: Error (CONFIGURATION_NOT_FOUND)", configurationNotSetUpMessage},
		{"identitytoolkit/configuration-not-found-x", configurationNotSetUpMessage},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, LoginErrorMessage(tt.code))
		})
	}
}

func TestRegisterErrorMessage(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"auth/email-already-in-use", "This email is already registered. Please use a different email or try logging in."},
		{"auth/invalid-email", "Invalid email address format."},
		{"auth/operation-not-allowed", "Email/password registration is not enabled. Please contact the administrator."},
		{"auth/weak-password", "Password is too weak. Please use a stronger password."},
		{"auth/network-request-failed", "Network error. Please check your internet connection."},
		{"auth/internal-error", "An internal error occurred. Please try again later."},
		{"auth/api-key-not-valid", "Firebase configuration error: Invalid API key. Please contact the administrator."},
		{"auth/configuration-not-found", configurationNotSetUpMessage},
		{"auth/wrong-password", DefaultRegisterMessage},
		{"", DefaultRegisterMessage},
		{"CONFIGURATION_NOT_FOUND", configurationNotSetUpMessage},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, RegisterErrorMessage(tt.code))
		})
	}
}

func TestIsConfigurationMessage(t *testing.T) {
	assert.True(t, IsConfigurationMessage(LoginErrorMessage(CodeConfigurationNotFound)))
	assert.True(t, IsConfigurationMessage(RegisterErrorMessage(CodeAPIKeyNotValid)))
	assert.True(t, IsConfigurationMessage(RegisterErrorMessage("CONFIGURATION_NOT_FOUND")))
	assert.True(t, IsConfigurationMessage("Firebase Configuration error"))
	assert.False(t, IsConfigurationMessage(LoginErrorMessage(CodeWrongPassword)))
	assert.False(t, IsConfigurationMessage(DefaultRegisterMessage))
}

func TestAuthErrorKind(t *testing.T) {
	assert.Equal(t, "credential", string(NewAuthError(CodeWrongPassword, "").Kind()))
	assert.Equal(t, "network", string(NetworkError(nil).Kind()))
	assert.Equal(t, "provider_configuration", string(NewAuthError(CodeConfigurationNotFound, "").Kind()))
	assert.Equal(t, "unknown", string(NewAuthError(CodeInternalError, "").Kind()))
}
