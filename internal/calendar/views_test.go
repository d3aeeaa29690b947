package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

func eventRow(id, listID int64, listName, school string, start time.Time, status *model.EventStatus) repository.EventRow {
	return repository.EventRow{
		CalendarEvent: model.CalendarEvent{
			ID:           id,
			UserID:       1,
			SupplementID: int64Ptr(id * 100),
			Title:        "event",
			Start:        start,
			End:          start.Add(time.Hour),
			Status:       status,
		},
		SchoolID:   id * 10,
		SchoolName: school,
		ListID:     listID,
		ListName:   listName,
	}
}

func TestService_EventsByList_GroupsInFirstSeenOrder(t *testing.T) {
	now := baseStart.Add(24 * time.Hour)
	repo := &mockEventRepo{
		listByUserFn: func(ctx context.Context, userID int64) ([]repository.EventRow, error) {
			return []repository.EventRow{
				eventRow(1, 5, "Safety", "State U", baseStart, nil),
				eventRow(2, 0, "", "Orphan College", baseStart.Add(time.Hour), nil),
				eventRow(3, 2, "Reach", "Ivy", baseStart.Add(2*time.Hour), statusPtr(model.StatusInProgress)),
				eventRow(4, 5, "Safety", "Tech", now.Add(time.Hour), nil),
			}, nil
		},
	}
	svc := NewService(repo, nil, nil)

	groups, err := svc.EventsByList(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("EventsByList returned error: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}

	wantOrder := []int64{5, 2, 0}
	for i, g := range groups {
		if g.ListID != wantOrder[i] {
			t.Errorf("groups[%d].ListID = %d, want %d", i, g.ListID, wantOrder[i])
		}
	}
	if len(groups[0].Events) != 2 || groups[0].ListName != "Safety" {
		t.Errorf("Safety group = %+v", groups[0])
	}

	safety := groups[0].Events
	if safety[0].Effective != model.StatusCompleted {
		t.Errorf("past event effective = %s, want completed", safety[0].Effective)
	}
	if safety[1].Effective != model.StatusPlanned {
		t.Errorf("future event effective = %s, want planned", safety[1].Effective)
	}

	// 明示的に設定された状態が導出値より優先される
	reach := groups[1].Events[0]
	if reach.DerivedStatus != model.StatusCompleted || reach.Effective != model.StatusInProgress {
		t.Errorf("reach derived=%s effective=%s", reach.DerivedStatus, reach.Effective)
	}

	if groups[2].Events[0].SchoolName != "Orphan College" {
		t.Errorf("orphan group = %+v", groups[2])
	}
}

func TestService_EventsByList_Empty(t *testing.T) {
	repo := &mockEventRepo{
		listByUserFn: func(ctx context.Context, userID int64) ([]repository.EventRow, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, nil, nil)

	groups, err := svc.EventsByList(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatalf("EventsByList returned error: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("len(groups) = %d, want 0", len(groups))
	}
}

func TestService_UnscheduledByList(t *testing.T) {
	repo := &mockEventRepo{
		listUnscheduledFn: func(ctx context.Context, userID int64) ([]repository.UnscheduledRow, error) {
			return []repository.UnscheduledRow{
				{ListID: 1, ListName: "Reach", SchoolID: 10, SchoolName: "Ivy", Kind: repository.UnscheduledSupplement,
					Supplement: &model.Supplement{ID: 100, SchoolID: 10, Prompt: "Why us"}},
				{ListID: 1, ListName: "Reach", SchoolID: 10, SchoolName: "Ivy", Kind: repository.UnscheduledSupplement,
					Supplement: &model.Supplement{ID: 101, SchoolID: 10, Prompt: "Community"}},
				{ListID: 1, ListName: "Reach", SchoolID: 10, SchoolName: "Ivy", Kind: repository.UnscheduledDeadline,
					Deadline: &model.Deadline{ID: 200, SchoolID: 10, ApplicationType: model.ApplicationTypeED}},
				{ListID: 1, ListName: "Reach", SchoolID: 11, SchoolName: "Tech", Kind: repository.UnscheduledDeadline,
					Deadline: &model.Deadline{ID: 201, SchoolID: 11, ApplicationType: model.ApplicationTypeRD}},
				{ListID: 3, ListName: "Safety", SchoolID: 12, SchoolName: "State U", Kind: repository.UnscheduledSupplement,
					Supplement: &model.Supplement{ID: 102, SchoolID: 12}},
			}, nil
		},
	}
	svc := NewService(repo, nil, nil)

	lists, err := svc.UnscheduledByList(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnscheduledByList returned error: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("len(lists) = %d, want 2", len(lists))
	}

	reach := lists[0]
	if reach.ListName != "Reach" || len(reach.Schools) != 2 {
		t.Fatalf("reach = %+v", reach)
	}
	ivy := reach.Schools[0]
	if ivy.SchoolName != "Ivy" || len(ivy.Supplements) != 2 || len(ivy.Deadlines) != 1 {
		t.Errorf("ivy = %+v", ivy)
	}
	if ivy.Supplements[0].ID != 100 || ivy.Supplements[1].ID != 101 {
		t.Errorf("supplement order = %d, %d", ivy.Supplements[0].ID, ivy.Supplements[1].ID)
	}
	if tech := reach.Schools[1]; len(tech.Supplements) != 0 || tech.Deadlines[0].ID != 201 {
		t.Errorf("tech = %+v", tech)
	}
	if lists[1].Schools[0].Supplements[0].ID != 102 {
		t.Errorf("safety = %+v", lists[1])
	}
}

func TestService_SupplementDashboard_StatusPerRow(t *testing.T) {
	now := baseStart.Add(30 * time.Minute)
	start := baseStart
	end := baseStart.Add(time.Hour)
	repo := &mockEventRepo{
		supplementDashboardFn: func(ctx context.Context, userID int64) ([]repository.SupplementDashboardRow, error) {
			return []repository.SupplementDashboardRow{
				{Supplement: model.Supplement{ID: 1}, SchoolName: "Ivy", ListID: 1, ListName: "Reach"},
				{Supplement: model.Supplement{ID: 2}, SchoolName: "Ivy", ListID: 1, ListName: "Reach",
					EventID: int64Ptr(9), EventStart: &start, EventEnd: &end},
				{Supplement: model.Supplement{ID: 3}, SchoolName: "Ivy", ListID: 1, ListName: "Reach",
					EventID: int64Ptr(10), EventStart: &start, EventEnd: &end, EventStatus: statusPtr(model.StatusCompleted)},
			}, nil
		},
	}
	svc := NewService(repo, nil, nil)

	items, err := svc.SupplementDashboard(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("SupplementDashboard returned error: %v", err)
	}
	want := []model.EventStatus{model.StatusNotPlanned, model.StatusInProgress, model.StatusCompleted}
	for i, item := range items {
		if item.Status != want[i] {
			t.Errorf("items[%d].Status = %s, want %s", i, item.Status, want[i])
		}
	}
}
