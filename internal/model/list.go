package model

import "time"

// List はユーザーが作成する学校の分類（例: Reach, Safety）。
type List struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
}

// ListEntry は (user_id, school_id) ごとに高々1件存在するリストへの割り当て。
type ListEntry struct {
	ID         int64
	UserID     int64
	ListID     int64
	SchoolID   int64
	DeadlineID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertAction はリストエントリのupsert結果を表す。
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)
