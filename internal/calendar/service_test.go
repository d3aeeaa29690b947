package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
	"github.com/hitoshi/collegetrack/internal/security"
)

// --- モック ---

type mockEventRepo struct {
	findByKeyFn           func(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error)
	findByIDForUserFn     func(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error)
	insertFn              func(ctx context.Context, event *model.CalendarEvent) (bool, error)
	updateByKeyFn         func(ctx context.Context, event *model.CalendarEvent) (bool, error)
	updateScheduleFn      func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error)
	listByUserFn          func(ctx context.Context, userID int64) ([]repository.EventRow, error)
	listUnscheduledFn     func(ctx context.Context, userID int64) ([]repository.UnscheduledRow, error)
	supplementDashboardFn func(ctx context.Context, userID int64) ([]repository.SupplementDashboardRow, error)
}

func (m *mockEventRepo) FindByKey(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
	if m.findByKeyFn != nil {
		return m.findByKeyFn(ctx, key)
	}
	return nil, nil
}
func (m *mockEventRepo) FindByIDForUser(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error) {
	if m.findByIDForUserFn != nil {
		return m.findByIDForUserFn(ctx, userID, eventID)
	}
	return nil, nil
}
func (m *mockEventRepo) Insert(ctx context.Context, event *model.CalendarEvent) (bool, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, event)
	}
	event.ID = 1
	return true, nil
}
func (m *mockEventRepo) UpdateByKey(ctx context.Context, event *model.CalendarEvent) (bool, error) {
	if m.updateByKeyFn != nil {
		return m.updateByKeyFn(ctx, event)
	}
	return true, nil
}
func (m *mockEventRepo) UpdateSchedule(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error) {
	if m.updateScheduleFn != nil {
		return m.updateScheduleFn(ctx, userID, eventID, patch)
	}
	return true, nil
}
func (m *mockEventRepo) ListByUser(ctx context.Context, userID int64) ([]repository.EventRow, error) {
	return m.listByUserFn(ctx, userID)
}
func (m *mockEventRepo) ListUnscheduled(ctx context.Context, userID int64) ([]repository.UnscheduledRow, error) {
	return m.listUnscheduledFn(ctx, userID)
}
func (m *mockEventRepo) SupplementDashboard(ctx context.Context, userID int64) ([]repository.SupplementDashboardRow, error) {
	return m.supplementDashboardFn(ctx, userID)
}

type mockRecorder struct {
	actions []string
}

func (m *mockRecorder) RecordCalendarEventUpsert(action string) {
	m.actions = append(m.actions, action)
}

func int64Ptr(v int64) *int64 { return &v }

func statusPtr(s model.EventStatus) *model.EventStatus { return &s }

var baseStart = time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

func validInput() UpsertEventInput {
	return UpsertEventInput{
		SupplementID: int64Ptr(10),
		Title:        "Why us",
		Start:        baseStart,
		End:          baseStart.Add(2 * time.Hour),
	}
}

// --- CreateOrUpdate ---

func TestService_CreateOrUpdate_Validation(t *testing.T) {
	svc := NewService(&mockEventRepo{
		findByKeyFn: func(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
			t.Fatal("repository must not be called for invalid input")
			return nil, nil
		},
	}, nil, nil)

	tests := []struct {
		name   string
		modify func(in *UpsertEventInput)
	}{
		{"両方指定", func(in *UpsertEventInput) { in.DeadlineID = int64Ptr(20) }},
		{"どちらもなし", func(in *UpsertEventInput) { in.SupplementID = nil }},
		{"startがendより後", func(in *UpsertEventInput) { in.Start = in.End.Add(time.Minute) }},
		{"タイトル空", func(in *UpsertEventInput) { in.Title = "  " }},
		{"不正なstatus", func(in *UpsertEventInput) { in.Status = statusPtr("done") }},
		{"日時なし", func(in *UpsertEventInput) { in.Start = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)
			_, err := svc.CreateOrUpdate(context.Background(), 1, in)
			if !model.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateOrUpdate_StartEqualsEndIsAllowed(t *testing.T) {
	svc := NewService(&mockEventRepo{}, nil, nil)
	in := validInput()
	in.End = in.Start

	if _, err := svc.CreateOrUpdate(context.Background(), 1, in); err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
}

func TestService_CreateOrUpdate_InsertsWhenNoEvent(t *testing.T) {
	var inserted *model.CalendarEvent
	rec := &mockRecorder{}
	repo := &mockEventRepo{
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			inserted = event
			event.ID = 55
			return true, nil
		},
		updateByKeyFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			t.Fatal("UpdateByKey must not be called when no event exists")
			return false, nil
		},
	}
	svc := NewService(repo, nil, rec)

	res, err := svc.CreateOrUpdate(context.Background(), 3, validInput())
	if err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	if !res.Inserted || res.EventID != 55 || res.Action != model.ActionCreated {
		t.Errorf("unexpected result: %+v", res)
	}
	if inserted.UserID != 3 || *inserted.SupplementID != 10 || inserted.DeadlineID != nil {
		t.Errorf("unexpected event: %+v", inserted)
	}
	if len(rec.actions) != 1 || rec.actions[0] != "created" {
		t.Errorf("recorded actions = %v, want [created]", rec.actions)
	}
}

func TestService_CreateOrUpdate_OverwritesExisting(t *testing.T) {
	var updated *model.CalendarEvent
	repo := &mockEventRepo{
		findByKeyFn: func(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
			return &model.CalendarEvent{ID: 9, UserID: key.UserID, SupplementID: key.SupplementID, Status: statusPtr(model.StatusCompleted)}, nil
		},
		updateByKeyFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			updated = event
			event.ID = 9
			return true, nil
		},
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			t.Fatal("Insert must not be called when event exists")
			return false, nil
		},
	}
	svc := NewService(repo, nil, nil)

	in := validInput()
	in.Title = "Why us v2"
	res, err := svc.CreateOrUpdate(context.Background(), 3, in)
	if err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	if res.Inserted || res.EventID != 9 || res.Action != model.ActionUpdated {
		t.Errorf("unexpected result: %+v", res)
	}
	if updated.Title != "Why us v2" {
		t.Errorf("Title = %q", updated.Title)
	}
	// 省略されたstatusはnilのまま渡し、既存値の維持はリポジトリに任せる
	if updated.Status != nil {
		t.Errorf("Status = %v, want nil", *updated.Status)
	}
}

// TestService_CreateOrUpdate_ConcurrentInsertResolvesToUpdate は
// 同時作成で負けた側がON CONFLICTにより更新として扱われることを検証する。
func TestService_CreateOrUpdate_ConcurrentInsertResolvesToUpdate(t *testing.T) {
	repo := &mockEventRepo{
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			event.ID = 77
			return false, nil
		},
	}
	svc := NewService(repo, nil, nil)

	res, err := svc.CreateOrUpdate(context.Background(), 1, validInput())
	if err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	if res.Inserted || res.Action != model.ActionUpdated || res.EventID != 77 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestService_CreateOrUpdate_DeletedBetweenFindAndUpdate(t *testing.T) {
	insertCalled := false
	repo := &mockEventRepo{
		findByKeyFn: func(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
			return &model.CalendarEvent{ID: 9}, nil
		},
		updateByKeyFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			return false, nil
		},
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			insertCalled = true
			event.ID = 10
			return true, nil
		},
	}
	svc := NewService(repo, nil, nil)

	res, err := svc.CreateOrUpdate(context.Background(), 1, validInput())
	if err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	if !insertCalled || !res.Inserted {
		t.Errorf("expected fallback insert, got %+v", res)
	}
}

func TestService_CreateOrUpdate_ForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		modify     func(in *UpsertEventInput)
		wantCode   string
	}{
		{"サプリメントなし", "calendar_events_supplement_id_fkey", func(in *UpsertEventInput) {}, model.ErrCodeSupplementNotFound},
		{"締切なし", "calendar_events_deadline_id_fkey", func(in *UpsertEventInput) {
			in.SupplementID = nil
			in.DeadlineID = int64Ptr(20)
		}, model.ErrCodeDeadlineNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockEventRepo{
				insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
					return false, &repository.ForeignKeyError{Constraint: tt.constraint}
				},
			}
			svc := NewService(repo, nil, nil)

			in := validInput()
			tt.modify(&in)
			_, err := svc.CreateOrUpdate(context.Background(), 1, in)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestService_CreateOrUpdate_RepoError(t *testing.T) {
	repo := &mockEventRepo{
		findByKeyFn: func(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateOrUpdate(context.Background(), 1, validInput())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("infrastructure error should not be an APIError: %v", err)
	}
}

// --- UpdateSchedule ---

func TestService_UpdateSchedule_EmptyPatch(t *testing.T) {
	svc := NewService(&mockEventRepo{}, nil, nil)

	err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_UpdateSchedule_ResultingRangeInvalid(t *testing.T) {
	repo := &mockEventRepo{
		findByIDForUserFn: func(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error) {
			return &model.CalendarEvent{ID: eventID, Start: baseStart, End: baseStart.Add(time.Hour)}, nil
		},
		updateScheduleFn: func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error) {
			t.Fatal("UpdateSchedule must not be called for invalid range")
			return false, nil
		},
	}
	svc := NewService(repo, nil, nil)

	// endのみ変更して既存のstartより前になる
	end := baseStart.Add(-time.Hour)
	err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{End: &end})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_UpdateSchedule_OtherUsersEvent(t *testing.T) {
	svc := NewService(&mockEventRepo{}, nil, nil)

	start := baseStart
	err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{Start: &start})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCalendarEventNotFound {
		t.Fatalf("expected CALENDAR_EVENT_NOT_FOUND, got %v", err)
	}
}

func TestService_UpdateSchedule_GoogleEventIDOnly(t *testing.T) {
	var gotPatch repository.SchedulePatch
	repo := &mockEventRepo{
		findByIDForUserFn: func(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error) {
			t.Fatal("lookup is not needed when dates are unchanged")
			return nil, nil
		},
		updateScheduleFn: func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error) {
			gotPatch = patch
			return true, nil
		},
	}
	svc := NewService(repo, nil, nil)

	id := "remote-1"
	if err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{GoogleEventID: &id}); err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}
	if gotPatch.GoogleEventID == nil || *gotPatch.GoogleEventID != "remote-1" {
		t.Errorf("patch.GoogleEventID = %v", gotPatch.GoogleEventID)
	}
}

func TestService_UpdateSchedule_ZeroRowsIsNotFound(t *testing.T) {
	repo := &mockEventRepo{
		updateScheduleFn: func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error) {
			return false, nil
		},
	}
	svc := NewService(repo, nil, nil)

	err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{Status: statusPtr(model.StatusCompleted)})
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_UpdateSchedule_CheckViolationIsValidation(t *testing.T) {
	repo := &mockEventRepo{
		updateScheduleFn: func(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) (bool, error) {
			return false, &repository.CheckError{Constraint: "calendar_events_start_before_end"}
		},
	}
	svc := NewService(repo, nil, nil)

	err := svc.UpdateSchedule(context.Background(), 1, 2, repository.SchedulePatch{Status: statusPtr(model.StatusPlanned)})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type upperSanitizer struct{}

func (upperSanitizer) SanitizeTitle(s string) string { return strings.TrimSpace(strings.ToUpper(s)) }

func TestService_CreateOrUpdate_SanitizesText(t *testing.T) {
	var inserted *model.CalendarEvent
	repo := &mockEventRepo{
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			inserted = event
			return true, nil
		},
	}
	svc := NewService(repo, upperSanitizer{}, nil)

	in := validInput()
	in.Description = "notes"
	if _, err := svc.CreateOrUpdate(context.Background(), 3, in); err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	// 説明文は無害化せずに保存する
	if inserted.Title != "WHY US" || inserted.Description != "notes" {
		t.Errorf("title = %q, description = %q", inserted.Title, inserted.Description)
	}

	// 無害化の結果タイトルが空になった場合は入力不正
	in.Title = "   "
	_, err := svc.CreateOrUpdate(context.Background(), 3, in)
	if !model.IsValidation(err) {
		t.Errorf("error = %v, want validation error", err)
	}
}

// TestService_CreateOrUpdate_StoresTextAsEntered は記号を含むタイトルと説明文が
// HTMLエスケープされずに保存されることを検証する。
func TestService_CreateOrUpdate_StoresTextAsEntered(t *testing.T) {
	var inserted *model.CalendarEvent
	repo := &mockEventRepo{
		insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
			inserted = event
			return true, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer(), nil)

	in := validInput()
	in.Title = "Tom's R&D essay"
	in.Description = "Tom's R&D: score < 1500 & GPA > 3.9"
	if _, err := svc.CreateOrUpdate(context.Background(), 3, in); err != nil {
		t.Fatalf("CreateOrUpdate returned error: %v", err)
	}
	if inserted.Title != "Tom's R&D essay" {
		t.Errorf("title = %q, want unchanged", inserted.Title)
	}
	if inserted.Description != "Tom's R&D: score < 1500 & GPA > 3.9" {
		t.Errorf("description = %q, want unchanged", inserted.Description)
	}
}

func TestService_CreateOrUpdate_TitleTooLong(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		insertErr  error
		wantInsert bool
	}{
		{"事前チェックで拒否", strings.Repeat("あ", model.MaxEventTitleLength+1), nil, false},
		{"DBの長さ超過も入力不正", "Why us", &repository.ValueTooLongError{Err: errors.New("pq: value too long")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockEventRepo{
				insertFn: func(ctx context.Context, event *model.CalendarEvent) (bool, error) {
					called = true
					return false, tt.insertErr
				},
			}
			svc := NewService(repo, nil, nil)

			in := validInput()
			in.Title = tt.title
			_, err := svc.CreateOrUpdate(context.Background(), 3, in)
			if !model.IsValidation(err) {
				t.Fatalf("error = %v, want validation error", err)
			}
			if called != tt.wantInsert {
				t.Errorf("insert called = %v, want %v", called, tt.wantInsert)
			}
		})
	}
}
