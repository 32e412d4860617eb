package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_UniqueScopeKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected unique index ux_user_scope_key")
	}

	now := time.Now().UTC()
	first := Idempotency{ID: "i1", UserID: "u1", ScopeID: "c1", Key: "k", ResourceID: "m1", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := first
	dup.ID = "i2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for same (user, scope, key)")
	}
	other := first
	other.ID, other.ScopeID = "i3", "c2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("different scope should insert: %v", err)
	}
}
