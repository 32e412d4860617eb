package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestMatched_ZeroRowsAffected(t *testing.T) {
	db := newTestDB(t, &domain.Contact{})
	ctx := context.Background()
	require.NoError(t, db.Create(&domain.Contact{ID: "c1"}).Error)

	// A driver that counts changed rows reports 0 for an identical rewrite.
	assert.NoError(t, matched(ctx, db, &domain.Contact{}, "c1", 0))
	assert.ErrorIs(t, matched(ctx, db, &domain.Contact{}, "nope", 0), ErrNotFound)
	assert.NoError(t, matched(ctx, db, &domain.Contact{}, "nope", 1), "affected rows skip the lookup")
}

func TestIsUniqueViolation(t *testing.T) {
	for _, msg := range []string{
		"UNIQUE constraint failed: contacts.wa_id",
		`ERROR: duplicate key value violates unique constraint "idx_users_email"`,
		"Error 1062: Duplicate entry 'a@b.c' for key 'email'",
	} {
		assert.True(t, isUniqueViolation(errors.New(msg)), msg)
	}
	assert.False(t, isUniqueViolation(errors.New("no such table: contacts")))
}
