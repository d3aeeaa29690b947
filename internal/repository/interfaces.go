// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByAuthSubject は外部IdPのsubjectでユーザーを取得する。見つからない場合はnilを返す。
	FindByAuthSubject(ctx context.Context, subject string) (*model.User, error)

	// Upsert はauth_subject_idをキーにユーザーを作成する。
	// 既に存在する場合はemailとnameを上書きする。userのID・タイムスタンプを埋めて返す。
	Upsert(ctx context.Context, user *model.User) error

	// Update はセレクタで指定したユーザーをpatchで部分更新する。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, selector UserSelector, patch UserPatch) (*model.User, error)

	// DeleteByAuthSubject は外部IdPのsubjectでユーザーを削除する。
	// 所有するlists、list_entries、calendar_eventsはCASCADE削除される。
	DeleteByAuthSubject(ctx context.Context, subject string) (bool, error)
}

// UserSelector は更新対象ユーザーの指定方法。IDかAuthSubjectIDのどちらか一方を指定する。
type UserSelector struct {
	ID            int64
	AuthSubjectID string
}

// UserPatch はユーザーの部分更新内容。nilのフィールドは変更しない。
// トークンは暗号化済みの値を渡すこと。
type UserPatch struct {
	Email                *string
	Name                 *string
	CalendarAccessToken  *string
	CalendarRefreshToken *string
	CalendarTokenExpires *time.Time

	// ClearCalendar はカレンダー連携情報をすべてNULLに戻す。他のCalendar*より優先する。
	ClearCalendar bool
}

// Empty は更新内容が1つもないかを返す。
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.Name == nil &&
		p.CalendarAccessToken == nil && p.CalendarRefreshToken == nil &&
		p.CalendarTokenExpires == nil && !p.ClearCalendar
}

// CatalogRepository は学校・締切・サプリメント（全ユーザー共有の読み取り専用データ）の参照インターフェース。
type CatalogRepository interface {
	// FindSchool は学校を取得する。見つからない場合はnilを返す。
	FindSchool(ctx context.Context, id int64) (*model.School, error)

	// FindDeadline は締切を取得する。見つからない場合はnilを返す。
	FindDeadline(ctx context.Context, id int64) (*model.Deadline, error)

	// FindSupplement はサプリメントを取得する。見つからない場合はnilを返す。
	FindSupplement(ctx context.Context, id int64) (*model.Supplement, error)
}

// ListRepository はリストの永続化インターフェース。
type ListRepository interface {
	// Create はリストを作成する。同名リストの重複は許可する。
	Create(ctx context.Context, list *model.List) error

	// FindByIDForUser はユーザー所有のリストを取得する。存在しないか他ユーザー所有の場合はnilを返す。
	FindByIDForUser(ctx context.Context, userID, listID int64) (*model.List, error)

	// DeleteForUser はユーザー所有のリストを削除する。インライン作成の取り消しにのみ使う。
	DeleteForUser(ctx context.Context, userID, listID int64) error

	// ListWithEntries はユーザーの全リストを、所属する学校と選択中の締切とともに返す。
	// 空のリストも1行（School*がゼロ値）として含む。lists.id, list_entries.id 順。
	ListWithEntries(ctx context.Context, userID int64) ([]ListEntryRow, error)
}

// ListEntryRepository はリストエントリ（(user_id, school_id)ごとの割り当て）の永続化インターフェース。
type ListEntryRepository interface {
	// FindByUserAndSchool は割り当てを取得する。見つからない場合はnilを返す。
	FindByUserAndSchool(ctx context.Context, userID, schoolID int64) (*model.ListEntry, error)

	// Insert は割り当てを作成する。
	// 同時実行で先に作成された場合はUNIQUE(user_id, school_id)制約により上書きとなり、inserted=falseを返す。
	Insert(ctx context.Context, entry *model.ListEntry) (inserted bool, err error)

	// UpdateByUserAndSchool は既存の割り当てのlist_idとdeadline_idを上書きする。
	// 対象が存在しない場合はfalseを返す。
	UpdateByUserAndSchool(ctx context.Context, entry *model.ListEntry) (bool, error)

	// DeleteForUser はユーザー所有のエントリを削除する。削除した場合trueを返す。
	DeleteForUser(ctx context.Context, userID, entryID int64) (bool, error)

	// SchoolDashboard はユーザーのエントリごとの学校ダッシュボード行を返す。
	SchoolDashboard(ctx context.Context, userID int64) ([]SchoolDashboardRow, error)
}

// CalendarEventRepository はカレンダーイベントの永続化インターフェース。
type CalendarEventRepository interface {
	// FindByKey は論理キーでイベントを取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error)

	// FindByIDForUser はユーザー所有のイベントを取得する。見つからない場合はnilを返す。
	FindByIDForUser(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error)

	// Insert はイベントを作成する。
	// 同時実行で先に作成された場合は部分ユニークインデックスにより上書きとなり、inserted=falseを返す。
	Insert(ctx context.Context, event *model.CalendarEvent) (inserted bool, err error)

	// UpdateByKey は既存イベントのtitle, description, start, end, statusを上書きする。
	// event.Statusがnilの場合は既存のstatusを維持する。対象が存在しない場合はfalseを返す。
	UpdateByKey(ctx context.Context, event *model.CalendarEvent) (bool, error)

	// UpdateSchedule はイベントの日時・外部イベントID・状態を部分更新する。
	// 対象が存在しない場合はfalseを返す。
	UpdateSchedule(ctx context.Context, userID, eventID int64, patch SchedulePatch) (bool, error)

	// ListByUser はユーザーの全イベントを、関連する学校と所属リストとともに開始日時順で返す。
	ListByUser(ctx context.Context, userID int64) ([]EventRow, error)

	// ListUnscheduled はユーザーのリストに含まれる学校のうち、
	// まだイベントが存在しないサプリメントと締切を返す。
	// lists.id, list_entries.id, 種別（サプリメント→締切）, 項目ID の順。
	ListUnscheduled(ctx context.Context, userID int64) ([]UnscheduledRow, error)

	// SupplementDashboard はユーザーのリストに含まれる全サプリメントを、イベント情報とともに返す。
	SupplementDashboard(ctx context.Context, userID int64) ([]SupplementDashboardRow, error)
}

// SchedulePatch はイベントのスケジュール部分更新内容。nilのフィールドは変更しない。
type SchedulePatch struct {
	Start         *time.Time
	End           *time.Time
	GoogleEventID *string
	Status        *model.EventStatus
}

// Empty は更新内容が1つもないかを返す。
func (p SchedulePatch) Empty() bool {
	return p.Start == nil && p.End == nil && p.GoogleEventID == nil && p.Status == nil
}

// ListEntryRow はリストとその所属学校を結合した行。
// 空のリストではEntryIDが0になる。
type ListEntryRow struct {
	ListID     int64
	ListName   string
	EntryID    int64
	SchoolID   int64
	SchoolName string
	DeadlineID *int64
}

// SchoolDashboardRow は学校ダッシュボードの1行。
type SchoolDashboardRow struct {
	EntryID         int64
	SchoolID        int64
	SchoolName      string
	ListID          int64
	ListName        string
	DeadlineID      *int64
	ApplicationType *model.ApplicationType
	DeadlineDate    *time.Time
	SupplementCount int
}

// EventRow はイベントに学校と所属リストを結合した行。
// 学校がどのリストにも属さない場合、ListIDは0になる。
type EventRow struct {
	model.CalendarEvent
	SchoolID   int64
	SchoolName string
	ListID     int64
	ListName   string
}

// UnscheduledKind は未スケジュール項目の種別。
type UnscheduledKind string

const (
	UnscheduledSupplement UnscheduledKind = "supplement"
	UnscheduledDeadline   UnscheduledKind = "deadline"
)

// UnscheduledRow はイベント未作成のサプリメントまたは締切の1行。
type UnscheduledRow struct {
	ListID     int64
	ListName   string
	SchoolID   int64
	SchoolName string
	Kind       UnscheduledKind
	Supplement *model.Supplement
	Deadline   *model.Deadline
}

// SupplementDashboardRow はサプリメントダッシュボードの1行。
// イベントが未作成の場合、Event*はnilになる。
type SupplementDashboardRow struct {
	Supplement  model.Supplement
	SchoolName  string
	ListID      int64
	ListName    string
	EventID     *int64
	EventStart  *time.Time
	EventEnd    *time.Time
	EventStatus *model.EventStatus
}
