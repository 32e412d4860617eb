package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestTemplates_CRUD(t *testing.T) {
	db := newTestDB(t, &domain.MessageTemplate{})
	ctx := context.Background()
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	older := &domain.MessageTemplate{ID: "t1", Name: "Salam", TemplateType: domain.TemplateTextOnly, CreatedAt: t0}
	newer := &domain.MessageTemplate{
		ID: "t2", Name: "Undangan", TemplateType: domain.TemplateTextPlaceholders,
		Details: datatypes.JSON(`{"placeholders":[{"name":"nama"}]}`), CreatedAt: t0.Add(time.Hour),
	}
	for _, tpl := range []*domain.MessageTemplate{older, newer} {
		if err := CreateTemplate(ctx, db, tpl); err != nil {
			t.Fatalf("CreateTemplate: %v", err)
		}
	}

	list, err := ListTemplates(ctx, db)
	if err != nil || len(list) != 2 || list[0].ID != "t2" {
		t.Fatalf("ListTemplates = (%+v, %v)", list, err)
	}

	up, err := UpdateTemplate(ctx, db, "t1", map[string]any{"name": "Salam Pagi"})
	if err != nil || up.Name != "Salam Pagi" {
		t.Fatalf("UpdateTemplate = (%+v, %v)", up, err)
	}
	if _, err := UpdateTemplate(ctx, db, "missing", map[string]any{"name": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := DeleteTemplate(ctx, db, "t1"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := GetTemplate(ctx, db, "t1"); !IsNotFound(err) {
		t.Fatalf("expected hard delete, got %v", err)
	}
}
