package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository/memory"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newAuth(t *testing.T) (AuthService, *memory.Store, *ManualClock) {
	t.Helper()
	store := memory.NewStore()
	clock := NewManualClock(time.Now().UTC())
	return NewAuthService(store.Users(), "test-secret", time.Hour, clock), store, clock
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{FirstName: " Ana ", LastName: "Horvat", Email: "  Ana@Example.COM ", Password: "s3cret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ana@example.com" || user.Role != domain.RoleMember || user.FirstName != "Ana" {
		t.Fatalf("user = %+v", user)
	}
	if user.PasswordHash != "" {
		t.Fatal("password hash leaked")
	}

	_, err = auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "ANA@example.com", Password: "x"})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("duplicate register: %v", err)
	}

	token, logged, err := auth.Login(ctx, "ana@EXAMPLE.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("logged in as %s", logged.ID.Hex())
	}

	id, err := auth.ParseToken(token)
	if err != nil || id != user.ID {
		t.Fatalf("parse: id=%s err=%v", id.Hex(), err)
	}

	if _, _, err := auth.Login(ctx, "ana@example.com", "wrong"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := auth.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	auth, _, _ := newAuth(t)
	tests := []RegisterInput{
		{LastName: "B", Email: "a@b.c", Password: "x"},
		{FirstName: "A", Email: "a@b.c", Password: "x"},
		{FirstName: "A", LastName: "B", Password: "x"},
		{FirstName: "A", LastName: "B", Email: "a@b.c"},
	}
	for i, in := range tests {
		if _, err := auth.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want invalid input", i, err)
		}
	}
}

func TestParseTokenRejects(t *testing.T) {
	auth, store, clock := newAuth(t)
	ctx := context.Background()
	if _, err := auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := auth.Login(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := NewAuthService(store.Users(), "other-secret", time.Hour, clock)
	if _, err := other.ParseToken(token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("foreign secret: %v", err)
	}
	if _, err := auth.ParseToken("not-a-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("garbage: %v", err)
	}

	// Tokens are checked against the wall clock, so issue one that is already expired.
	expired := NewAuthService(store.Users(), "test-secret", time.Hour, NewManualClock(time.Now().Add(-2*time.Hour)))
	old, _, err := expired.Login(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.ParseToken(old); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expired: %v", err)
	}
}

func TestResolvePrincipalFollowsRoleChanges(t *testing.T) {
	auth, store, _ := newAuth(t)
	ctx := context.Background()
	user, err := auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := auth.ResolvePrincipal(ctx, user.ID)
	if err != nil || p.Role != domain.RoleMember {
		t.Fatalf("principal = %+v, err = %v", p, err)
	}

	if _, err := store.Users().UpdateRole(ctx, user.ID, domain.RoleTrainer); err != nil {
		t.Fatalf("update role: %v", err)
	}
	p, err = auth.ResolvePrincipal(ctx, user.ID)
	if err != nil || p.Role != domain.RoleTrainer {
		t.Fatalf("principal = %+v, err = %v", p, err)
	}

	if _, err := auth.ResolvePrincipal(ctx, primitive.NewObjectID()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestAdminChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := NewAdminService(f.store.Users())
	m := f.member(t)

	tests := []struct {
		name string
		p    domain.Principal
		id   primitive.ObjectID
		role domain.Role
		want error
	}{
		{"not admin", f.trainer, m.ID, domain.RoleTrainer, ErrForbidden},
		{"bad role", f.admin, m.ID, domain.Role("owner"), ErrInvalidInput},
		{"own admin role", f.admin, f.admin.ID, domain.RoleMember, ErrOwnAdminRole},
		{"unknown user", f.admin, primitive.NewObjectID(), domain.RoleTrainer, ErrUserNotFound},
		{"promote", f.admin, m.ID, domain.RoleSubscriber, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := admin.ChangeRole(ctx, tt.p, tt.id, tt.role)
			if tt.want != nil {
				assertErr(t, err, tt.want)
				return
			}
			if err != nil {
				t.Fatalf("change role: %v", err)
			}
			if u.Role != tt.role {
				t.Fatalf("role = %s, want %s", u.Role, tt.role)
			}
		})
	}

	users, err := admin.ListUsers(ctx, f.admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("users = %d, want 3", len(users))
	}
	if _, err := admin.ListUsers(ctx, m); !errors.Is(err, ErrForbidden) {
		t.Fatalf("member list: %v", err)
	}
}
