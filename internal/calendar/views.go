package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// EventView は表示用のイベント。
type EventView struct {
	model.CalendarEvent
	SchoolID      int64
	SchoolName    string
	DerivedStatus model.EventStatus
	Effective     model.EventStatus
}

// ListEvents はリストごとにまとめたイベント。ListIDが0のグループはどのリストにも属さない学校のもの。
type ListEvents struct {
	ListID   int64
	ListName string
	Events   []EventView
}

// UnscheduledSchool は学校ごとの未スケジュール項目。
type UnscheduledSchool struct {
	SchoolID    int64
	SchoolName  string
	Supplements []model.Supplement
	Deadlines   []model.Deadline
}

// UnscheduledList はリストごとの未スケジュール項目。
type UnscheduledList struct {
	ListID   int64
	ListName string
	Schools  []UnscheduledSchool
}

// SupplementDashboardItem はサプリメントダッシュボードの1行。
type SupplementDashboardItem struct {
	Supplement model.Supplement
	SchoolName string
	ListID     int64
	ListName   string
	EventID    *int64
	EventStart *time.Time
	EventEnd   *time.Time
	Status     model.EventStatus
}

// EventsByList はユーザーのイベントを、関連する学校が属するリストごとにまとめて返す。
// グループの並びはイベントを開始日時順に走査したときの初出順。
// どのリストにも属さない学校のイベントは末尾のListID=0のグループに入る。
func (s *Service) EventsByList(ctx context.Context, userID int64, now time.Time) ([]ListEvents, error) {
	rows, err := s.eventRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダーイベント一覧の取得に失敗しました: %w", err)
	}

	var groups []ListEvents
	index := make(map[int64]int)
	var orphans []EventView

	for _, row := range rows {
		start, end := row.Start, row.End
		view := EventView{
			CalendarEvent: row.CalendarEvent,
			SchoolID:      row.SchoolID,
			SchoolName:    row.SchoolName,
			DerivedStatus: model.DeriveStatus(&start, &end, now),
			Effective:     model.EffectiveStatus(row.Status, &start, &end, now),
		}
		if row.ListID == 0 {
			orphans = append(orphans, view)
			continue
		}
		i, ok := index[row.ListID]
		if !ok {
			i = len(groups)
			index[row.ListID] = i
			groups = append(groups, ListEvents{ListID: row.ListID, ListName: row.ListName})
		}
		groups[i].Events = append(groups[i].Events, view)
	}
	if len(orphans) > 0 {
		groups = append(groups, ListEvents{Events: orphans})
	}
	return groups, nil
}

// UnscheduledByList はリスト → 学校 の階層で、イベント未作成のサプリメントと締切を返す。
func (s *Service) UnscheduledByList(ctx context.Context, userID int64) ([]UnscheduledList, error) {
	rows, err := s.eventRepo.ListUnscheduled(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("未スケジュール項目の取得に失敗しました: %w", err)
	}

	var lists []UnscheduledList
	listIndex := make(map[int64]int)
	type schoolPos struct{ list, school int }
	schoolIndex := make(map[[2]int64]schoolPos)

	for _, row := range rows {
		li, ok := listIndex[row.ListID]
		if !ok {
			li = len(lists)
			listIndex[row.ListID] = li
			lists = append(lists, UnscheduledList{ListID: row.ListID, ListName: row.ListName})
		}

		k := [2]int64{row.ListID, row.SchoolID}
		pos, ok := schoolIndex[k]
		if !ok {
			pos = schoolPos{list: li, school: len(lists[li].Schools)}
			schoolIndex[k] = pos
			lists[li].Schools = append(lists[li].Schools, UnscheduledSchool{
				SchoolID:   row.SchoolID,
				SchoolName: row.SchoolName,
			})
		}

		school := &lists[pos.list].Schools[pos.school]
		switch row.Kind {
		case repository.UnscheduledSupplement:
			if row.Supplement != nil {
				school.Supplements = append(school.Supplements, *row.Supplement)
			}
		case repository.UnscheduledDeadline:
			if row.Deadline != nil {
				school.Deadlines = append(school.Deadlines, *row.Deadline)
			}
		}
	}
	return lists, nil
}

// SupplementDashboard はリスト内の全サプリメントを、イベントの有無と実効状態とともに返す。
// イベントがないサプリメントはNotPlannedになる。
func (s *Service) SupplementDashboard(ctx context.Context, userID int64, now time.Time) ([]SupplementDashboardItem, error) {
	rows, err := s.eventRepo.SupplementDashboard(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("サプリメントダッシュボードの取得に失敗しました: %w", err)
	}

	items := make([]SupplementDashboardItem, 0, len(rows))
	for _, row := range rows {
		status := model.StatusNotPlanned
		if row.EventID != nil {
			status = model.EffectiveStatus(row.EventStatus, row.EventStart, row.EventEnd, now)
		}
		items = append(items, SupplementDashboardItem{
			Supplement: row.Supplement,
			SchoolName: row.SchoolName,
			ListID:     row.ListID,
			ListName:   row.ListName,
			EventID:    row.EventID,
			EventStart: row.EventStart,
			EventEnd:   row.EventEnd,
			Status:     status,
		})
	}
	return items, nil
}
