package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCache struct {
	authUID   string
	profileID string
}

func (s stubCache) CachedAuthUID() string   { return s.authUID }
func (s stubCache) CachedProfileID() string { return s.profileID }

func TestClient_SignIn_ReturnsSession(t *testing.T) {
	c := NewClient(NewAuth(&fakeBackend{}), nil)

	sess, err := c.SignIn(context.Background(), "user@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", sess.UserID)
	assert.True(t, sess.IsAuthenticated)
}

func TestClient_SignIn_WrongPassword(t *testing.T) {
	backend := &fakeBackend{
		signInFn: func(ctx context.Context, email, password string) (*Credential, error) {
			return nil, NewAuthError(CodeWrongPassword, "INVALID_PASSWORD")
		},
	}
	c := NewClient(NewAuth(backend), nil)

	_, err := c.SignIn(context.Background(), "user@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Incorrect password. Please try again.", LoginErrorMessage(CodeOf(err)))
}

func TestClient_CurrentUserID_ResolutionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("プロバイダーセッションを優先", func(t *testing.T) {
		a := NewAuth(&fakeBackend{})
		_, err := a.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
		require.NoError(t, err)
		c := NewClient(a, stubCache{authUID: "cached-auth", profileID: "cached-profile"})

		id, ok := c.CurrentUserID()
		assert.True(t, ok)
		assert.Equal(t, "uid-1", id)
	})

	t.Run("認証パーティションにフォールバック", func(t *testing.T) {
		c := NewClient(NewAuth(&fakeBackend{}), stubCache{authUID: "cached-auth", profileID: "cached-profile"})
		id, ok := c.CurrentUserID()
		assert.True(t, ok)
		assert.Equal(t, "cached-auth", id)
	})

	t.Run("ユーザーパーティションにフォールバック", func(t *testing.T) {
		c := NewClient(NewAuth(&fakeBackend{}), stubCache{profileID: "cached-profile"})
		id, ok := c.CurrentUserID()
		assert.True(t, ok)
		assert.Equal(t, "cached-profile", id)
	})

	t.Run("解決できない場合は失敗", func(t *testing.T) {
		c := NewClient(NewAuth(&fakeBackend{}), stubCache{})
		id, ok := c.CurrentUserID()
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("プレースホルダーポリシー", func(t *testing.T) {
		c := NewClient(NewAuth(&fakeBackend{}), nil, WithPlaceholderUserID("guest"))
		id, ok := c.CurrentUserID()
		assert.True(t, ok)
		assert.Equal(t, "guest", id)
	})
}

func TestClient_CurrentIDToken(t *testing.T) {
	ctx := context.Background()
	a := NewAuth(&fakeBackend{})
	c := NewClient(a, nil)

	tok, ok := c.CurrentIDToken(ctx)
	assert.False(t, ok)
	assert.Empty(t, tok)

	_, err := a.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
	require.NoError(t, err)
	tok, ok = c.CurrentIDToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "id-token-uid-1", tok)
}

func TestClient_CurrentIDToken_RefreshFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		refreshFn: func(ctx context.Context, refreshToken string) (*Tokens, error) {
			return nil, NewAuthError(CodeInvalidUserToken, "INVALID_REFRESH_TOKEN")
		},
		signInFn: func(ctx context.Context, email, password string) (*Credential, error) {
			return &Credential{User: &User{UID: "uid-1"}}, nil
		},
	}
	a := NewAuth(backend)
	_, err := a.SignInWithEmailAndPassword(ctx, "user@example.com", "secret1")
	require.NoError(t, err)

	tok, ok := NewClient(a, nil).CurrentIDToken(ctx)
	assert.False(t, ok)
	assert.Empty(t, tok)
}

func TestClient_DisplayFieldsAndSerializedUser(t *testing.T) {
	ctx := context.Background()
	a := NewAuth(&fakeBackend{})
	c := NewClient(a, nil)

	name, email := c.DisplayFields()
	assert.Empty(t, name)
	assert.Empty(t, email)
	assert.Nil(t, c.CurrentUser())

	_, err := c.SignUp(ctx, "new@example.com", "secret1")
	require.NoError(t, err)
	au, err := c.UpdateDisplayName(ctx, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "uid-new", au.UID)
	assert.Equal(t, "Jane Doe", au.DisplayName)

	name, email = c.DisplayFields()
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "new@example.com", email)
}
