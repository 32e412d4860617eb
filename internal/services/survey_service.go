// Package services – SurveyService
//
// SurveyService manages the survey definition tree used to plan paid
// fieldwork: period types, periods, surveys (parents group leaf surveys),
// survey details under leaf surveys, and the activities (role, task, unit,
// pay rate) attached to details.
//
// Delete policy:
//   - activities are soft-deleted (is_active=false) and disappear from
//     ListActivities;
//   - surveys, periods and period types are hard-deleted; deleting a survey
//     leaves its details orphaned.
package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/repo"
)

var payPrinter = message.NewPrinter(language.Indonesian)

// FormatPayRate renders a pay rate in rupiah with Indonesian digit grouping,
// e.g. "Rp 150.000".
func FormatPayRate(v float64) string {
	return payPrinter.Sprintf("Rp %d", int64(math.Round(v)))
}

// SurveyInput is the payload for creating or replacing a survey.
type SurveyInput struct {
	Name         string `json:"nama"             validate:"required"`
	PeriodTypeID *int64 `json:"tipe_periode_id"`
	IsParent     bool   `json:"is_parent"`
	ParentID     *int64 `json:"parent_survei_id"`
}

// SurveyDetailInput is the payload for creating a survey detail.
type SurveyDetailInput struct {
	Name     string `json:"nama_kegiatan" validate:"required"`
	SurveyID int64  `json:"survei_id"     validate:"required,gt=0"`
}

// ActivityInput is the payload for creating an activity.
type ActivityInput struct {
	SurveyDetailID int64   `json:"survei_rinci_id" validate:"required,gt=0"`
	Role           string  `json:"jabatan"         validate:"required"`
	Task           string  `json:"jenis_pekerjaan" validate:"required"`
	Unit           string  `json:"satuan"          validate:"required"`
	PayRate        float64 `json:"honor"           validate:"gte=0"`
}

// ActivityPatch lists editable activity fields. Nil fields are unchanged.
type ActivityPatch struct {
	Role    *string  `json:"jabatan"         validate:"omitempty,min=1"`
	Task    *string  `json:"jenis_pekerjaan" validate:"omitempty,min=1"`
	Unit    *string  `json:"satuan"          validate:"omitempty,min=1"`
	PayRate *float64 `json:"honor"           validate:"omitempty,gte=0"`
}

// PeriodInput is the payload for creating or replacing a period.
type PeriodInput struct {
	Name         string `json:"nama_periode"    validate:"required"`
	PeriodTypeID *int64 `json:"tipe_periode_id"`
}

// SurveyNode is a survey with its children, for tree display.
type SurveyNode struct {
	domain.Survey
	Children []SurveyNode `json:"children"`
}

// ActivityDetailRef is the detail an activity belongs to.
type ActivityDetailRef struct {
	ID       int64          `json:"id"`
	Name     string         `json:"nama_kegiatan"`
	SurveyID int64          `json:"survei_id"`
	Survey   *domain.Survey `json:"survei,omitempty"`
}

// ActivityView is an active activity together with its detail and survey.
type ActivityView struct {
	ID          int64             `json:"id"`
	Role        string            `json:"jabatan"`
	Task        string            `json:"jenis_pekerjaan"`
	Unit        string            `json:"satuan"`
	PayRate     float64           `json:"honor"`
	PayRateText string            `json:"honor_text"`
	IsActive    bool              `json:"is_active"`
	Detail      ActivityDetailRef `json:"survei_rinci"`
}

// SurveyService manages survey definitions and activities.
type SurveyService struct {
	DB *gorm.DB
}

func (s *SurveyService) tracer() trace.Tracer { return otel.Tracer("services/SurveyService") }

// --- period types ---

// PeriodTypes lists period types by ascending ID.
func (s *SurveyService) PeriodTypes(ctx context.Context) ([]domain.PeriodType, error) {
	out, err := repo.ListPeriodTypes(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListPeriodTypes", err)
	}
	return out, nil
}

// CreatePeriodType adds a period type.
func (s *SurveyService) CreatePeriodType(ctx context.Context, name string) (*domain.PeriodType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, E(KindInvalid, "CreatePeriodType", errBlank("nama_tipe"))
	}
	p := &domain.PeriodType{Name: name}
	if err := repo.CreatePeriodType(ctx, s.DB, p); err != nil {
		return nil, E(KindBackend, "CreatePeriodType", err)
	}
	return p, nil
}

// UpdatePeriodType renames a period type.
func (s *SurveyService) UpdatePeriodType(ctx context.Context, id int64, name string) (*domain.PeriodType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, E(KindInvalid, "UpdatePeriodType", errBlank("nama_tipe"))
	}
	p, err := repo.UpdatePeriodType(ctx, s.DB, id, name)
	if err != nil {
		return nil, notFoundOr("UpdatePeriodType", err)
	}
	return p, nil
}

// DeletePeriodType removes a period type.
func (s *SurveyService) DeletePeriodType(ctx context.Context, id int64) error {
	if err := repo.DeletePeriodType(ctx, s.DB, id); err != nil {
		return notFoundOr("DeletePeriodType", err)
	}
	return nil
}

// --- periods ---

// Periods lists periods, newest first.
func (s *SurveyService) Periods(ctx context.Context) ([]domain.Period, error) {
	out, err := repo.ListPeriods(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListPeriods", err)
	}
	return out, nil
}

// CreatePeriod adds a period.
func (s *SurveyService) CreatePeriod(ctx context.Context, in PeriodInput) (*domain.Period, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := check("CreatePeriod", in); err != nil {
		return nil, err
	}
	p := &domain.Period{Name: in.Name, PeriodTypeID: in.PeriodTypeID}
	if err := repo.CreatePeriod(ctx, s.DB, p); err != nil {
		return nil, E(KindBackend, "CreatePeriod", err)
	}
	return repo.GetPeriod(ctx, s.DB, p.ID)
}

// UpdatePeriod replaces a period's name and type.
func (s *SurveyService) UpdatePeriod(ctx context.Context, id int64, in PeriodInput) (*domain.Period, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := check("UpdatePeriod", in); err != nil {
		return nil, err
	}
	p, err := repo.UpdatePeriod(ctx, s.DB, id, map[string]any{
		"nama_periode":    in.Name,
		"tipe_periode_id": in.PeriodTypeID,
	})
	if err != nil {
		return nil, notFoundOr("UpdatePeriod", err)
	}
	return p, nil
}

// DeletePeriod removes a period.
func (s *SurveyService) DeletePeriod(ctx context.Context, id int64) error {
	if err := repo.DeletePeriod(ctx, s.DB, id); err != nil {
		return notFoundOr("DeletePeriod", err)
	}
	return nil
}

// --- surveys ---

// Surveys lists surveys, newest first.
func (s *SurveyService) Surveys(ctx context.Context) ([]domain.Survey, error) {
	out, err := repo.ListSurveys(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListSurveys", err)
	}
	return out, nil
}

// CreateSurvey adds a survey. A parent reference must point at a parent survey.
func (s *SurveyService) CreateSurvey(ctx context.Context, in SurveyInput) (*domain.Survey, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.checkSurvey(ctx, "CreateSurvey", 0, in); err != nil {
		return nil, err
	}
	sv := &domain.Survey{Name: in.Name, PeriodTypeID: in.PeriodTypeID, IsParent: in.IsParent, ParentID: in.ParentID}
	if err := repo.CreateSurvey(ctx, s.DB, sv); err != nil {
		return nil, E(KindBackend, "CreateSurvey", err)
	}
	return repo.GetSurvey(ctx, s.DB, sv.ID)
}

// UpdateSurvey replaces a survey's fields.
func (s *SurveyService) UpdateSurvey(ctx context.Context, id int64, in SurveyInput) (*domain.Survey, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.checkSurvey(ctx, "UpdateSurvey", id, in); err != nil {
		return nil, err
	}
	sv, err := repo.UpdateSurvey(ctx, s.DB, id, map[string]any{
		"nama":             in.Name,
		"tipe_periode_id":  in.PeriodTypeID,
		"is_parent":        in.IsParent,
		"parent_survei_id": in.ParentID,
	})
	if err != nil {
		return nil, notFoundOr("UpdateSurvey", err)
	}
	return sv, nil
}

func (s *SurveyService) checkSurvey(ctx context.Context, op string, id int64, in SurveyInput) error {
	if err := check(op, in); err != nil {
		return err
	}
	if in.ParentID == nil {
		return nil
	}
	if *in.ParentID == id {
		return E(KindInvalid, op, errors.New("a survey cannot be its own parent"))
	}
	parent, err := repo.GetSurvey(ctx, s.DB, *in.ParentID)
	if err != nil {
		if repo.IsNotFound(err) {
			return E(KindInvalid, op, errors.New("parent survey does not exist"))
		}
		return E(KindBackend, op, err)
	}
	if !parent.IsParent {
		return E(KindInvalid, op, errors.New("parent_survei_id must reference a parent survey"))
	}
	return nil
}

// DeleteSurvey hard-deletes a survey. Its details are not removed.
func (s *SurveyService) DeleteSurvey(ctx context.Context, id int64) error {
	ctx, span := s.tracer().Start(ctx, "DeleteSurvey", trace.WithAttributes(attribute.Int64("survey.id", id)))
	defer span.End()

	if err := repo.DeleteSurvey(ctx, s.DB, id); err != nil {
		return notFoundOr("DeleteSurvey", err)
	}
	return nil
}

// SurveyTree returns surveys grouped under their parents, by name. Surveys
// whose parent is missing are shown at the top level.
func (s *SurveyService) SurveyTree(ctx context.Context) ([]SurveyNode, error) {
	all, err := s.Surveys(ctx)
	if err != nil {
		return nil, err
	}
	return BuildSurveyTree(all), nil
}

// BuildSurveyTree groups surveys by parent.
func BuildSurveyTree(all []domain.Survey) []SurveyNode {
	byID := make(map[int64]bool, len(all))
	for _, sv := range all {
		byID[sv.ID] = true
	}
	children := make(map[int64][]domain.Survey)
	var roots []domain.Survey
	for _, sv := range all {
		if sv.ParentID != nil && byID[*sv.ParentID] && *sv.ParentID != sv.ID {
			children[*sv.ParentID] = append(children[*sv.ParentID], sv)
			continue
		}
		roots = append(roots, sv)
	}

	seen := make(map[int64]bool, len(all))
	var build func([]domain.Survey) []SurveyNode
	build = func(list []domain.Survey) []SurveyNode {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		out := make([]SurveyNode, 0, len(list))
		for _, sv := range list {
			if seen[sv.ID] {
				continue
			}
			seen[sv.ID] = true
			out = append(out, SurveyNode{Survey: sv, Children: build(children[sv.ID])})
		}
		return out
	}
	return build(roots)
}

// --- survey details ---

// SurveyDetails lists details by name. Orphaned details have no survey.
func (s *SurveyService) SurveyDetails(ctx context.Context) ([]domain.SurveyDetail, error) {
	out, err := repo.ListSurveyDetails(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListSurveyDetails", err)
	}
	return out, nil
}

// CreateSurveyDetail adds a detail under a leaf survey. Parent surveys are
// rejected with ErrParentSurvey.
func (s *SurveyService) CreateSurveyDetail(ctx context.Context, in SurveyDetailInput) (*domain.SurveyDetail, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := check("CreateSurveyDetail", in); err != nil {
		return nil, err
	}
	sv, err := repo.GetSurvey(ctx, s.DB, in.SurveyID)
	if err != nil {
		return nil, notFoundOr("CreateSurveyDetail", err)
	}
	if sv.IsParent {
		return nil, ErrParentSurvey
	}
	d := &domain.SurveyDetail{Name: in.Name, SurveyID: in.SurveyID}
	if err := repo.CreateSurveyDetail(ctx, s.DB, d); err != nil {
		return nil, E(KindBackend, "CreateSurveyDetail", err)
	}
	return repo.GetSurveyDetail(ctx, s.DB, d.ID)
}

// --- activities ---

// Activities lists active activities with their detail and survey, ordered
// by detail name.
func (s *SurveyService) Activities(ctx context.Context) ([]ActivityView, error) {
	details, err := repo.ListActiveActivities(ctx, s.DB)
	if err != nil {
		return nil, E(KindBackend, "ListActivities", err)
	}
	out := make([]ActivityView, 0, len(details))
	for _, d := range details {
		if d.Activity == nil || !d.Activity.IsActive {
			continue
		}
		a := d.Activity
		out = append(out, ActivityView{
			ID:          a.ID,
			Role:        a.Role,
			Task:        a.Task,
			Unit:        a.Unit,
			PayRate:     a.PayRate,
			PayRateText: FormatPayRate(a.PayRate),
			IsActive:    true,
			Detail:      ActivityDetailRef{ID: d.ID, Name: d.Name, SurveyID: d.SurveyID, Survey: d.Survey},
		})
	}
	return out, nil
}

// CreateActivity adds an active activity to a survey detail.
func (s *SurveyService) CreateActivity(ctx context.Context, in ActivityInput) (*domain.Activity, error) {
	in.Role, in.Task, in.Unit = strings.TrimSpace(in.Role), strings.TrimSpace(in.Task), strings.TrimSpace(in.Unit)
	if err := check("CreateActivity", in); err != nil {
		return nil, err
	}
	if _, err := repo.GetSurveyDetail(ctx, s.DB, in.SurveyDetailID); err != nil {
		return nil, notFoundOr("CreateActivity", err)
	}
	a := &domain.Activity{
		SurveyDetailID: in.SurveyDetailID,
		Role:           in.Role,
		Task:           in.Task,
		Unit:           in.Unit,
		PayRate:        in.PayRate,
		IsActive:       true,
	}
	if err := repo.CreateActivity(ctx, s.DB, a); err != nil {
		return nil, E(KindBackend, "CreateActivity", err)
	}
	return a, nil
}

// UpdateActivity edits an activity.
func (s *SurveyService) UpdateActivity(ctx context.Context, id int64, p ActivityPatch) (*domain.Activity, error) {
	if err := check("UpdateActivity", p); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if p.Role != nil {
		fields["jabatan"] = strings.TrimSpace(*p.Role)
	}
	if p.Task != nil {
		fields["jenis_pekerjaan"] = strings.TrimSpace(*p.Task)
	}
	if p.Unit != nil {
		fields["satuan"] = strings.TrimSpace(*p.Unit)
	}
	if p.PayRate != nil {
		fields["honor"] = *p.PayRate
	}
	a, err := repo.UpdateActivity(ctx, s.DB, id, fields)
	if err != nil {
		return nil, notFoundOr("UpdateActivity", err)
	}
	return a, nil
}

// DeleteActivity soft-deletes an activity.
func (s *SurveyService) DeleteActivity(ctx context.Context, id int64) error {
	if err := repo.DeactivateActivity(ctx, s.DB, id); err != nil {
		return notFoundOr("DeleteActivity", err)
	}
	return nil
}
