package model

import "time"

// EventStatus はカレンダーイベントの進捗状態。
type EventStatus string

const (
	StatusNotPlanned EventStatus = "not_planned"
	StatusPlanned    EventStatus = "planned"
	StatusInProgress EventStatus = "in_progress"
	StatusCompleted  EventStatus = "completed"
)

// ParseEventStatus は文字列を EventStatus に変換する。
func ParseEventStatus(s string) (EventStatus, error) {
	st := EventStatus(s)
	if !st.Valid() {
		return "", NewValidationError("status は not_planned, planned, in_progress, completed のいずれかを指定してください")
	}
	return st, nil
}

// Valid は定義済みの状態かを返す。
func (s EventStatus) Valid() bool {
	switch s {
	case StatusNotPlanned, StatusPlanned, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// DisplayName は画面表示用の名称を返す。
func (s EventStatus) DisplayName() string {
	switch s {
	case StatusPlanned:
		return "Planned"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	default:
		return "Not Planned"
	}
}

// DeriveStatus はイベントの期間と現在時刻から状態を導出する。
// start/end のどちらかが nil の場合はイベントなしとして NotPlanned を返す。
func DeriveStatus(start, end *time.Time, now time.Time) EventStatus {
	if start == nil || end == nil {
		return StatusNotPlanned
	}
	switch {
	case end.Before(now):
		return StatusCompleted
	case start.After(now):
		return StatusPlanned
	default:
		return StatusInProgress
	}
}

// EffectiveStatus は表示に用いる状態を返す。
// ユーザーが明示的に設定した状態があればそれを優先し、なければ導出値を返す。
func EffectiveStatus(persisted *EventStatus, start, end *time.Time, now time.Time) EventStatus {
	if persisted != nil && persisted.Valid() {
		return *persisted
	}
	return DeriveStatus(start, end, now)
}
