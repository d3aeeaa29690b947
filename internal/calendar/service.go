// Package calendar はサプリメント・締切ごとの作業予定（カレンダーイベント）を管理する。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// UpsertRecorder はイベントupsertの計測インターフェース。
type UpsertRecorder interface {
	RecordCalendarEventUpsert(action string)
}

// TextSanitizer はユーザー入力のタイトルを保存前にプレーンテキスト化する。
// 説明文は入力どおりに保存し、HTMLとして表示する外部カレンダー側で無害化する。
type TextSanitizer interface {
	SanitizeTitle(s string) string
}

// UpsertEventInput はイベント作成・上書きの入力。
// SupplementID と DeadlineID はどちらか一方のみを指定する。
type UpsertEventInput struct {
	SupplementID *int64
	DeadlineID   *int64
	Title        string
	Description  string
	Start        time.Time
	End          time.Time
	Status       *model.EventStatus
}

// UpsertEventResult はupsertの結果。
type UpsertEventResult struct {
	EventID  int64
	Inserted bool
	Action   model.UpsertAction
}

// Service はカレンダーイベントのサービス層。
type Service struct {
	eventRepo repository.CalendarEventRepository
	sanitizer TextSanitizer
	metrics   UpsertRecorder
}

// NewService はServiceの新しいインスタンスを生成する。sanitizerとmetricsはnilでもよい。
func NewService(eventRepo repository.CalendarEventRepository, sanitizer TextSanitizer, metrics UpsertRecorder) *Service {
	return &Service{eventRepo: eventRepo, sanitizer: sanitizer, metrics: metrics}
}

// CreateOrUpdate は(user, supplement) または (user, deadline) をキーにイベントを作成または上書きする。
//
// 状態遷移:
//   - イベントなし → 作成（Inserted=true）
//   - イベントあり → title, description, start, end, status を上書き（Statusがnilなら既存値を維持）
//
// 作成と上書きが同時に走った場合も部分ユニークインデックスにより1件に収束する。
func (s *Service) CreateOrUpdate(ctx context.Context, userID int64, in UpsertEventInput) (*UpsertEventResult, error) {
	key := model.EventKey{UserID: userID, SupplementID: in.SupplementID, DeadlineID: in.DeadlineID}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if s.sanitizer != nil {
		in.Title = s.sanitizer.SanitizeTitle(in.Title)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.NewValidationError("title は必須です")
	}
	if err := model.CheckLength("title", in.Title, model.MaxEventTitleLength); err != nil {
		return nil, err
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, model.NewValidationError("start と end は必須です")
	}
	if in.Start.After(in.End) {
		return nil, model.NewValidationError("start は end 以前の日時を指定してください")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, model.NewValidationError("status が不正です")
	}

	event := &model.CalendarEvent{
		UserID:       userID,
		SupplementID: in.SupplementID,
		DeadlineID:   in.DeadlineID,
		Title:        in.Title,
		Description:  in.Description,
		Start:        in.Start,
		End:          in.End,
		Status:       in.Status,
	}

	existing, err := s.eventRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("カレンダーイベントの取得に失敗しました: %w", err)
	}

	inserted := false
	if existing != nil {
		updated, err := s.eventRepo.UpdateByKey(ctx, event)
		if err != nil {
			return nil, s.translateWriteError(err, in)
		}
		// 取得後に削除されていた場合は作成に切り替える
		if !updated {
			existing = nil
		}
	}
	if existing == nil {
		inserted, err = s.eventRepo.Insert(ctx, event)
		if err != nil {
			return nil, s.translateWriteError(err, in)
		}
	}

	action := model.ActionUpdated
	if inserted {
		action = model.ActionCreated
	}
	if s.metrics != nil {
		s.metrics.RecordCalendarEventUpsert(string(action))
	}
	slog.Info("カレンダーイベントを保存しました",
		slog.Int64("user_id", userID),
		slog.Int64("event_id", event.ID),
		slog.String("action", string(action)),
	)

	return &UpsertEventResult{EventID: event.ID, Inserted: inserted, Action: action}, nil
}

// UpdateSchedule はイベントの日時・外部イベントID・状態を部分更新する。
// 他ユーザーのイベントや存在しないイベントはNotFoundErrorになる。
func (s *Service) UpdateSchedule(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) error {
	if patch.Empty() {
		return model.NewValidationError("更新する項目がありません")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.NewValidationError("status が不正です")
	}

	if patch.Start != nil || patch.End != nil {
		current, err := s.eventRepo.FindByIDForUser(ctx, userID, eventID)
		if err != nil {
			return fmt.Errorf("カレンダーイベントの取得に失敗しました: %w", err)
		}
		if current == nil {
			return model.NewCalendarEventNotFoundError(eventID)
		}
		start, end := current.Start, current.End
		if patch.Start != nil {
			start = *patch.Start
		}
		if patch.End != nil {
			end = *patch.End
		}
		if start.After(end) {
			return model.NewValidationError("start は end 以前の日時を指定してください")
		}
	}

	updated, err := s.eventRepo.UpdateSchedule(ctx, userID, eventID, patch)
	if err != nil {
		var checkErr *repository.CheckError
		if errors.As(err, &checkErr) {
			return model.NewValidationError("start は end 以前の日時を指定してください")
		}
		return fmt.Errorf("カレンダーイベントの更新に失敗しました: %w", err)
	}
	if !updated {
		return model.NewCalendarEventNotFoundError(eventID)
	}
	return nil
}

// translateWriteError は外部キー・CHECK制約違反を型付きエラーに変換する。
func (s *Service) translateWriteError(err error, in UpsertEventInput) error {
	var fkErr *repository.ForeignKeyError
	if errors.As(err, &fkErr) {
		switch fkErr.Constraint {
		case "calendar_events_supplement_id_fkey":
			return model.NewSupplementNotFoundError(derefID(in.SupplementID))
		case "calendar_events_deadline_id_fkey":
			return model.NewDeadlineNotFoundError(derefID(in.DeadlineID))
		case "calendar_events_user_id_fkey":
			return model.NewUserNotFoundError()
		}
	}
	var checkErr *repository.CheckError
	if errors.As(err, &checkErr) {
		return model.NewValidationError(checkErr.Constraint)
	}
	var tooLong *repository.ValueTooLongError
	if errors.As(err, &tooLong) {
		return model.NewValidationError("入力値が長すぎます")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("カレンダーイベントの保存に失敗しました: %w", err)
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
