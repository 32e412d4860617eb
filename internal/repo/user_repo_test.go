package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestUsers_CRUD_AndAuthLookup(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	ctx := context.Background()

	u := &domain.User{ID: "u1", Email: "a@pst.id", Name: "Ani", IsActive: true, AuthUID: strp("acc-1"), CreatedAt: time.Now().UTC()}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := CreateUser(ctx, db, &domain.User{ID: "u2", Email: "a@pst.id", Name: "Dup"}); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate on e-mail reuse, got %v", err)
	}

	got, err := GetUserByAuthUID(ctx, db, "acc-1")
	if err != nil || got.ID != "u1" || got.Role != "staff" {
		t.Fatalf("GetUserByAuthUID = (%+v, %v)", got, err)
	}
	if _, err := GetUserByAuthUID(ctx, db, "nobody"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	up, err := UpdateUser(ctx, db, "u1", map[string]any{"position": "Kepala"})
	if err != nil || up.Position == nil || *up.Position != "Kepala" {
		t.Fatalf("UpdateUser = (%+v, %v)", up, err)
	}
	if _, err := UpdateUser(ctx, db, "nope", map[string]any{"name": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := TouchLastLogin(ctx, db, "acc-1", at); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	got, _ = GetUser(ctx, db, "u1")
	if got.LastLogin == nil || !got.LastLogin.Equal(at) {
		t.Fatalf("last_login not set: %+v", got.LastLogin)
	}

	list, err := ListUsers(ctx, db)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListUsers = (%d, %v)", len(list), err)
	}
	if err := DeleteUser(ctx, db, "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := DeleteUser(ctx, db, "u1"); err != ErrNotFound {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestAccountsAndSessions(t *testing.T) {
	db := newTestDB(t, &domain.Account{}, &domain.SessionRecord{})
	ctx := context.Background()
	now := time.Now().UTC()

	acc := &domain.Account{ID: "acc-1", Email: "b@pst.id", PasswordHash: "h"}
	if err := CreateAccount(ctx, db, acc); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := CreateAccount(ctx, db, &domain.Account{ID: "acc-2", Email: "b@pst.id", PasswordHash: "h"}); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if got, err := GetAccountByEmail(ctx, db, "b@pst.id"); err != nil || got.ID != "acc-1" {
		t.Fatalf("GetAccountByEmail = (%+v, %v)", got, err)
	}

	live := &domain.SessionRecord{ID: "s-live", AccountID: "acc-1", ExpiresAt: now.Add(time.Hour)}
	expired := &domain.SessionRecord{ID: "s-old", AccountID: "acc-1", ExpiresAt: now.Add(-time.Minute)}
	for _, s := range []*domain.SessionRecord{live, expired} {
		if err := CreateSession(ctx, db, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	if _, err := GetActiveSession(ctx, db, "s-live", now); err != nil {
		t.Fatalf("live session: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "s-old", now); !IsNotFound(err) {
		t.Fatalf("expired session should be not found, got %v", err)
	}

	if err := RevokeSession(ctx, db, "s-live", now); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "s-live", now); !IsNotFound(err) {
		t.Fatalf("revoked session should be not found, got %v", err)
	}

	n, err := PurgeSessions(ctx, db, now)
	if err != nil || n != 2 {
		t.Fatalf("PurgeSessions = (%d, %v); want (2, nil)", n, err)
	}

	if err := DeleteAccount(ctx, db, "acc-1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if err := DeleteAccount(ctx, db, "acc-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
