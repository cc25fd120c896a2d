package user

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/security"
)

// --- モック ---

type mockProfileRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.UserProfile, error)
	upsertFn     func(ctx context.Context, id string, patch model.ProfilePatch, now time.Time) (*model.UserProfile, bool, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileRepo) Upsert(ctx context.Context, id string, patch model.ProfilePatch, now time.Time) (*model.UserProfile, bool, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, id, patch, now)
	}
	return model.ApplyPatch(model.NewDefaultProfile(id, "", "", now), patch, now), true, nil
}

func (m *mockProfileRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

// memoryRepo はUpsertの振る舞いをメモリ上で再現する。
type memoryRepo struct {
	mockProfileRepo
	profiles map[string]*model.UserProfile
}

func newMemoryRepo() *memoryRepo {
	r := &memoryRepo{profiles: map[string]*model.UserProfile{}}
	r.findByIDFn = func(_ context.Context, id string) (*model.UserProfile, error) {
		return r.profiles[id].Clone(), nil
	}
	r.upsertFn = func(_ context.Context, id string, patch model.ProfilePatch, now time.Time) (*model.UserProfile, bool, error) {
		cur, ok := r.profiles[id]
		if !ok {
			cur = model.NewDefaultProfile(id, "", "", now)
		}
		next := model.ApplyPatch(cur, patch, now)
		if !ok {
			next.UpdatedAt = next.CreatedAt
		}
		r.profiles[id] = next
		return next.Clone(), !ok, nil
	}
	return r
}

// --- テスト ---

func TestGetProfile_NotFound(t *testing.T) {
	svc := NewService(&mockProfileRepo{}, nil)

	_, err := svc.GetProfile(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound || apiErr.Message != "User not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestGetProfile_RepositoryError(t *testing.T) {
	repoErr := errors.New("connection refused")
	svc := NewService(&mockProfileRepo{
		findByIDFn: func(context.Context, string) (*model.UserProfile, error) { return nil, repoErr },
	}, nil)

	_, err := svc.GetProfile(context.Background(), "u1")
	if !errors.Is(err, repoErr) {
		t.Errorf("err = %v, want wrapping %v", err, repoErr)
	}
}

func TestUpdateProfile_CreatesAndThenKeepsIDAndCreatedAt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, security.NewTextSanitizer())
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	name := "Alice"
	first, err := svc.UpdateProfile(context.Background(), "u1", model.ProfilePatch{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.UpdateProfile(context.Background(), "u1", model.ProfilePatch{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != "u1" || second.ID != "u1" {
		t.Errorf("ids = %q, %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("createdAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updatedAt must strictly increase: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.Name != "Alice" {
		t.Errorf("name = %q", second.Name)
	}
}

func TestUpdateProfile_RejectsInvalidEmail(t *testing.T) {
	called := false
	svc := NewService(&mockProfileRepo{
		upsertFn: func(context.Context, string, model.ProfilePatch, time.Time) (*model.UserProfile, bool, error) {
			called = true
			return nil, false, nil
		},
	}, nil)

	email := "bad"
	_, err := svc.UpdateProfile(context.Background(), "u1", model.ProfilePatch{Email: &email})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidProfile {
		t.Fatalf("err = %v, want INVALID_PROFILE", err)
	}
	if called {
		t.Error("repository must not be called for invalid input")
	}
}

func TestUpdateProfile_RejectsLongName(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	name := strings.Repeat("a", maxNameLength+1)

	_, err := svc.UpdateProfile(context.Background(), "u1", model.ProfilePatch{Name: &name})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateProfile_SanitizesMarkup(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, security.NewTextSanitizer())

	name := `<script>alert(1)</script>Bob`
	p, err := svc.UpdateProfile(context.Background(), "u2", model.ProfilePatch{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(p.Name, "<") {
		t.Errorf("markup not removed: %q", p.Name)
	}
}

func TestDeleteProfile(t *testing.T) {
	repo := newMemoryRepo()
	repo.profiles["u1"] = model.NewDefaultProfile("u1", "Alice", "alice@example.com", time.Now())
	deleted := ""
	repo.deleteByIDFn = func(_ context.Context, id string) error {
		deleted = id
		delete(repo.profiles, id)
		return nil
	}
	svc := NewService(repo, nil)

	if err := svc.DeleteProfile(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "u1" {
		t.Errorf("deleted = %q", deleted)
	}

	var apiErr *model.APIError
	if err := svc.DeleteProfile(context.Background(), "u1"); !errors.As(err, &apiErr) {
		t.Errorf("second delete err = %v, want USER_NOT_FOUND", err)
	}
}
