package apiclient

import "time"

// List はユーザーが作成したリスト。
type List struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListedSchool はリストに割り当てられた学校。
type ListedSchool struct {
	EntryID    int64  `json:"entry_id"`
	SchoolID   int64  `json:"school_id"`
	SchoolName string `json:"school_name"`
	DeadlineID *int64 `json:"deadline_id"`
}

// ListWithSchools は GET /api/lists の要素。
type ListWithSchools struct {
	ListID   int64          `json:"list_id"`
	ListName string         `json:"list_name"`
	Schools  []ListedSchool `json:"schools"`
}

// AssignRequest は PUT /api/list-entries のボディ。
// ListIDとNewListNameはどちらか一方を指定する。
type AssignRequest struct {
	SchoolID    int64   `json:"school_id"`
	ListID      *int64  `json:"list_id,omitempty"`
	NewListName *string `json:"new_list_name,omitempty"`
	DeadlineID  *int64  `json:"deadline_id,omitempty"`
}

// ListEntry は(ユーザー, 学校)の割り当て。
type ListEntry struct {
	ID         int64     `json:"id"`
	ListID     int64     `json:"list_id"`
	SchoolID   int64     `json:"school_id"`
	DeadlineID *int64    `json:"deadline_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AssignResponse は PUT /api/list-entries のレスポンス。
type AssignResponse struct {
	Entry       ListEntry `json:"entry"`
	Action      string    `json:"action"`
	CreatedList *List     `json:"created_list,omitempty"`
}

// UpsertEventRequest は POST /api/calendar-events のボディ。
type UpsertEventRequest struct {
	SupplementID *int64    `json:"supplement_id,omitempty"`
	DeadlineID   *int64    `json:"deadline_id,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       *string   `json:"status,omitempty"`
}

// UpsertEventResponse は POST /api/calendar-events のレスポンス。
type UpsertEventResponse struct {
	EventID  int64  `json:"event_id"`
	Action   string `json:"action"`
	Inserted bool   `json:"inserted"`
}

// SchedulePatch は PATCH /api/calendar-events/{id} のボディ。nilの項目は変更しない。
type SchedulePatch struct {
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Status *string    `json:"status,omitempty"`
}

// Event はリスト別イベント一覧の要素。
type Event struct {
	ID                   int64     `json:"id"`
	SupplementID         *int64    `json:"supplement_id"`
	DeadlineID           *int64    `json:"deadline_id"`
	SchoolID             int64     `json:"school_id"`
	SchoolName           string    `json:"school_name"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Status               *string   `json:"status"`
	DerivedStatus        string    `json:"derived_status"`
	EffectiveStatus      string    `json:"effective_status"`
	EffectiveStatusLabel string    `json:"effective_status_label"`
	GoogleEventID        *string   `json:"google_event_id"`
}

// ListEvents は GET /api/calendar-events の要素。
type ListEvents struct {
	ListID   int64   `json:"list_id"`
	ListName string  `json:"list_name"`
	Events   []Event `json:"events"`
}

// CreateRemoteEventRequest は POST /api/calendar/google/events のボディ。
type CreateRemoteEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	EventID     *int64    `json:"event_id,omitempty"`
}

// SyncResult は外部カレンダー作成の結果。
// 未接続や更新失敗でもエラーにはならず、GoogleCalendarConnectedがfalseになる。
type SyncResult struct {
	Success                 bool   `json:"success"`
	GoogleCalendarConnected bool   `json:"google_calendar_connected"`
	GoogleEventID           string `json:"google_event_id,omitempty"`
	Message                 string `json:"message,omitempty"`
}
