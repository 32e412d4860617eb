package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestVisitors_ListJoinsAndStatusUpdate(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	t0 := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	if err := db.Create(&domain.Member{ID: "m1", Name: "Sari"}).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if err := db.Create(&domain.User{ID: "u1", Email: "op@pst.id", Name: "Operator", IsActive: true}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	visits := []domain.Visitor{
		{ID: "v1", PstUserID: "m1", CheckinTime: t0, QueueNumber: "A1"},
		{ID: "v2", PstUserID: "m1", CheckinTime: t0.Add(time.Hour), QueueNumber: "A2", AssignedTo: strp("u1")},
	}
	if err := db.Create(&visits).Error; err != nil {
		t.Fatalf("seed visitors: %v", err)
	}

	out, err := ListVisitors(ctx, db)
	if err != nil {
		t.Fatalf("ListVisitors: %v", err)
	}
	if len(out) != 2 || out[0].ID != "v2" {
		t.Fatalf("expected newest check-in first, got %+v", out)
	}
	if out[0].Member == nil || out[0].Member.Name != "Sari" || out[0].AssignedUser == nil || out[0].AssignedUser.Name != "Operator" {
		t.Fatalf("joins missing: %+v", out[0])
	}
	if out[1].AssignedUser != nil || out[1].Status != domain.VisitorWaiting {
		t.Fatalf("unexpected unassigned visitor: %+v", out[1])
	}

	if err := UpdateVisitorStatus(ctx, db, "v1", domain.VisitorInProgress, strp("u1")); err != nil {
		t.Fatalf("UpdateVisitorStatus: %v", err)
	}
	v, _ := GetVisitor(ctx, db, "v1")
	if v.Status != domain.VisitorInProgress || v.AssignedTo == nil || *v.AssignedTo != "u1" {
		t.Fatalf("status not updated: %+v", v)
	}
	if err := UpdateVisitorStatus(ctx, db, "missing", domain.VisitorCompleted, nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMembers_GetMany(t *testing.T) {
	db := newTestDB(t, &domain.Member{})
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	seed := []domain.Member{
		{ID: "a", Name: "Budi", CreatedAt: base},
		{ID: "b", Name: "Ani", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c", Name: "Citra", CreatedAt: base.Add(time.Hour)},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := GetMembersByIDs(ctx, db, []string{"a", "b", "zzz"})
	if err != nil || len(got) != 2 || got[0].Name != "Ani" {
		t.Fatalf("GetMembersByIDs = (%+v, %v)", got, err)
	}
	empty, err := GetMembersByIDs(ctx, db, nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty ids = (%v, %v)", empty, err)
	}
	all, _ := ListMembers(ctx, db)
	if len(all) != 3 || all[0].Name != "Ani" {
		t.Fatalf("ListMembers order: %+v", all)
	}
}

func TestServiceRequests_CRUD(t *testing.T) {
	db := newTestDB(t, &domain.ServiceType{}, &domain.ServiceRequest{})
	ctx := context.Background()

	if err := db.Create(&[]domain.ServiceType{{ID: "st2", Name: "Perpustakaan"}, {ID: "st1", Name: "Konsultasi"}}).Error; err != nil {
		t.Fatalf("seed types: %v", err)
	}
	types, _ := ListServiceTypes(ctx, db)
	if len(types) != 2 || types[0].ID != "st1" {
		t.Fatalf("service types not ordered by name: %+v", types)
	}

	r := &domain.ServiceRequest{ID: "r1", PstUserID: "m1", CheckinID: strp("v1"), ServiceTypeID: "st1", Title: "Data inflasi"}
	if err := CreateServiceRequest(ctx, db, r); err != nil {
		t.Fatalf("CreateServiceRequest: %v", err)
	}
	list, err := ListServiceRequests(ctx, db, "v1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListServiceRequests = (%+v, %v)", list, err)
	}
	if list[0].Status != domain.RequestPending || list[0].Priority != domain.PriorityNormal || list[0].ServiceType == nil {
		t.Fatalf("defaults/join missing: %+v", list[0])
	}

	up, err := UpdateServiceRequest(ctx, db, "r1", map[string]any{"status": "completed"})
	if err != nil || up.Status != "completed" {
		t.Fatalf("UpdateServiceRequest = (%+v, %v)", up, err)
	}
	if err := DeleteServiceRequest(ctx, db, "r1"); err != nil {
		t.Fatalf("DeleteServiceRequest: %v", err)
	}
	if _, err := GetServiceRequest(ctx, db, "r1"); !IsNotFound(err) {
		t.Fatalf("expected hard delete, got %v", err)
	}
	if err := DeleteServiceRequest(ctx, db, "r1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
