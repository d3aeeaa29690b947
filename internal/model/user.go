package model

import "time"

// User は外部IdP（Clerk）のユーザーを写したローカルレコード。
// Calendar* フィールドは Credential Vault で暗号化された値のみを保持する。
type User struct {
	ID                   int64
	AuthSubjectID        string
	Email                string
	Name                 string
	CalendarAccessToken  string
	CalendarRefreshToken string
	CalendarTokenExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CalendarConnected はカレンダー連携済み（アクセストークン保持）かを返す。
func (u *User) CalendarConnected() bool {
	return u != nil && u.CalendarAccessToken != ""
}
