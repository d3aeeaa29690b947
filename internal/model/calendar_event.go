package model

import "time"

// EventKey はカレンダーイベントの論理キー。
// SupplementID と DeadlineID のどちらか一方のみが設定される。
type EventKey struct {
	UserID       int64
	SupplementID *int64
	DeadlineID   *int64
}

// Validate は SupplementID/DeadlineID の排他指定を検証する。
func (k EventKey) Validate() error {
	switch {
	case k.SupplementID != nil && k.DeadlineID != nil:
		return NewValidationError("supplement_id と deadline_id は同時に指定できません")
	case k.SupplementID == nil && k.DeadlineID == nil:
		return NewValidationError("supplement_id または deadline_id のどちらかを指定してください")
	}
	return nil
}

// CalendarEvent はサプリメントまたは締切に紐づく作業予定。
type CalendarEvent struct {
	ID            int64
	UserID        int64
	SupplementID  *int64
	DeadlineID    *int64
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	Status        *EventStatus
	GoogleEventID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key はイベントの論理キーを返す。
func (e *CalendarEvent) Key() EventKey {
	return EventKey{UserID: e.UserID, SupplementID: e.SupplementID, DeadlineID: e.DeadlineID}
}
