package repo

import (
	"context"
	"testing"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

func TestSurveyDelete_IsHardAndOrphansDetails(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	s := &domain.Survey{Name: "Sakernas"}
	if err := CreateSurvey(ctx, db, s); err != nil {
		t.Fatalf("CreateSurvey: %v", err)
	}
	d := &domain.SurveyDetail{Name: "Pencacahan", SurveyID: s.ID}
	if err := CreateSurveyDetail(ctx, db, d); err != nil {
		t.Fatalf("CreateSurveyDetail: %v", err)
	}

	if err := DeleteSurvey(ctx, db, s.ID); err != nil {
		t.Fatalf("DeleteSurvey: %v", err)
	}
	if _, err := GetSurvey(ctx, db, s.ID); !IsNotFound(err) {
		t.Fatalf("survey should be gone, got %v", err)
	}

	details, err := ListSurveyDetails(ctx, db)
	if err != nil {
		t.Fatalf("ListSurveyDetails: %v", err)
	}
	if len(details) != 1 || details[0].ID != d.ID || details[0].Survey != nil {
		t.Fatalf("expected one orphaned detail, got %+v", details)
	}
	if err := DeleteSurvey(ctx, db, s.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityDelete_IsSoft(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	pt := &domain.PeriodType{Name: "Bulanan"}
	_ = CreatePeriodType(ctx, db, pt)
	s := &domain.Survey{Name: "Susenas", PeriodTypeID: &pt.ID}
	_ = CreateSurvey(ctx, db, s)
	d1 := &domain.SurveyDetail{Name: "B Kegiatan", SurveyID: s.ID}
	d2 := &domain.SurveyDetail{Name: "A Kegiatan", SurveyID: s.ID}
	_ = CreateSurveyDetail(ctx, db, d1)
	_ = CreateSurveyDetail(ctx, db, d2)

	a1 := &domain.Activity{SurveyDetailID: d1.ID, Role: "PCL", Task: "Cacah", Unit: "Dokumen", PayRate: 5000, IsActive: true}
	a2 := &domain.Activity{SurveyDetailID: d2.ID, Role: "PML", Task: "Periksa", Unit: "Dokumen", PayRate: 2500, IsActive: true}
	for _, a := range []*domain.Activity{a1, a2} {
		if err := CreateActivity(ctx, db, a); err != nil {
			t.Fatalf("CreateActivity: %v", err)
		}
	}

	active, err := ListActiveActivities(ctx, db)
	if err != nil {
		t.Fatalf("ListActiveActivities: %v", err)
	}
	if len(active) != 2 || active[0].Name != "A Kegiatan" {
		t.Fatalf("expected 2 details ordered by name, got %+v", active)
	}
	if active[0].Survey == nil || active[0].Survey.PeriodType == nil || active[0].Survey.PeriodType.Name != "Bulanan" {
		t.Fatalf("survey/period type join missing: %+v", active[0].Survey)
	}

	if err := DeactivateActivity(ctx, db, a1.ID); err != nil {
		t.Fatalf("DeactivateActivity: %v", err)
	}
	got, err := GetActivity(ctx, db, a1.ID)
	if err != nil {
		t.Fatalf("soft-deleted row must remain: %v", err)
	}
	if got.IsActive {
		t.Fatalf("is_active should be false")
	}

	active, _ = ListActiveActivities(ctx, db)
	if len(active) != 1 || active[0].ID != d2.ID {
		t.Fatalf("inactive activity still listed: %+v", active)
	}
	if err := DeactivateActivity(ctx, db, a1.ID); err != nil {
		t.Fatalf("deactivating twice: %v", err)
	}
	if err := DeactivateActivity(ctx, db, 9999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPeriodsAndPeriodTypes(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	for _, n := range []string{"Bulanan", "Triwulanan"} {
		if err := CreatePeriodType(ctx, db, &domain.PeriodType{Name: n}); err != nil {
			t.Fatalf("CreatePeriodType: %v", err)
		}
	}
	types, _ := ListPeriodTypes(ctx, db)
	if len(types) != 2 || types[0].Name != "Bulanan" {
		t.Fatalf("period types not by id asc: %+v", types)
	}
	renamed, err := UpdatePeriodType(ctx, db, types[1].ID, "Kuartalan")
	if err != nil || renamed.Name != "Kuartalan" {
		t.Fatalf("UpdatePeriodType = (%+v, %v)", renamed, err)
	}

	p := &domain.Period{Name: "Januari 2025", PeriodTypeID: &types[0].ID}
	if err := CreatePeriod(ctx, db, p); err != nil {
		t.Fatalf("CreatePeriod: %v", err)
	}
	got, err := UpdatePeriod(ctx, db, p.ID, map[string]any{"nama_periode": "Februari 2025"})
	if err != nil || got.Name != "Februari 2025" || got.PeriodType == nil {
		t.Fatalf("UpdatePeriod = (%+v, %v)", got, err)
	}
	if _, err := UpdatePeriod(ctx, db, 424242, nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for empty update on missing row, got %v", err)
	}
	if err := DeletePeriod(ctx, db, p.ID); err != nil {
		t.Fatalf("DeletePeriod: %v", err)
	}
	if err := DeletePeriodType(ctx, db, types[0].ID); err != nil {
		t.Fatalf("DeletePeriodType: %v", err)
	}
	if err := DeletePeriodType(ctx, db, types[0].ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
