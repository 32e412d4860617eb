package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }

// mockGateway is a testify mock of the messaging gateway.
type mockGateway struct{ mock.Mock }

func (m *mockGateway) SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error) {
	args := m.Called(ctx, to, body)
	resp, _ := args.Get(0).(*whatsapp.SendResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) SendImage(ctx context.Context, to, link, caption string) (*whatsapp.SendResponse, error) {
	args := m.Called(ctx, to, link, caption)
	resp, _ := args.Get(0).(*whatsapp.SendResponse)
	return resp, args.Error(1)
}

// okResponse is a gateway acknowledgement carrying wamid.
func okResponse(wamid string) *whatsapp.SendResponse {
	r := &whatsapp.SendResponse{}
	r.Messages = append(r.Messages, struct {
		ID string `json:"id"`
	}{ID: wamid})
	return r
}

// recordingHub captures published changes.
type recordingHub struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (h *recordingHub) Publish(_ context.Context, c realtime.Change) error {
	h.mu.Lock()
	h.changes = append(h.changes, c)
	h.mu.Unlock()
	return nil
}

func (h *recordingHub) Subscribe(context.Context, realtime.Filter, realtime.Handler) (*realtime.Subscription, error) {
	return nil, realtime.ErrClosed
}

func (h *recordingHub) Close() error { return nil }

func (h *recordingHub) events(table string) []realtime.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []realtime.EventKind
	for _, c := range h.changes {
		if c.Table == table {
			out = append(out, c.Event)
		}
	}
	return out
}

// seedStaff inserts a staff user linked to authUID.
func seedStaff(t *testing.T, db *gorm.DB, id, authUID string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@pst.test", Name: "Staff " + id, Role: "staff", IsActive: true, AuthUID: &authUID}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	return u
}

// seedContact inserts a contact; an empty waID leaves it unreachable.
func seedContact(t *testing.T, db *gorm.DB, id, waID, name string) *domain.Contact {
	t.Helper()
	c := &domain.Contact{ID: id, ChatbotState: domain.DefaultChatbotState}
	if waID != "" {
		c.WaID = &waID
	}
	if name != "" {
		c.Name = &name
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return c
}
