package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/collegetrack/internal/model"
)

// PostgresListRepo はPostgreSQLを使用したリストリポジトリ。
type PostgresListRepo struct {
	db *sql.DB
}

// NewPostgresListRepo はPostgresListRepoを生成する。
func NewPostgresListRepo(db *sql.DB) *PostgresListRepo {
	return &PostgresListRepo{db: db}
}

// Create はリストを作成し、listのIDと作成日時を埋める。
func (r *PostgresListRepo) Create(ctx context.Context, list *model.List) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO lists (user_id, name) VALUES ($1, $2) RETURNING id, created_at`,
		list.UserID, list.Name,
	).Scan(&list.ID, &list.CreatedAt)
	if err != nil {
		return fmt.Errorf("リストの作成に失敗しました: %w", translatePQError(err))
	}
	return nil
}

// FindByIDForUser はユーザー所有のリストを取得する。見つからない場合はnilを返す。
func (r *PostgresListRepo) FindByIDForUser(ctx context.Context, userID, listID int64) (*model.List, error) {
	l := &model.List{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM lists WHERE id = $1 AND user_id = $2`,
		listID, userID,
	).Scan(&l.ID, &l.UserID, &l.Name, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	return l, nil
}

// DeleteForUser はユーザー所有のリストを削除する。
func (r *PostgresListRepo) DeleteForUser(ctx context.Context, userID, listID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM lists WHERE id = $1 AND user_id = $2`,
		listID, userID,
	)
	if err != nil {
		return fmt.Errorf("リストの削除に失敗しました: %w", err)
	}
	return nil
}

// ListWithEntries はユーザーの全リストを所属学校とともに返す。
func (r *PostgresListRepo) ListWithEntries(ctx context.Context, userID int64) ([]ListEntryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.name, le.id, s.id, s.name, le.deadline_id
		 FROM lists l
		 LEFT JOIN list_entries le ON le.list_id = l.id AND le.user_id = l.user_id
		 LEFT JOIN schools s ON s.id = le.school_id
		 WHERE l.user_id = $1
		 ORDER BY l.id, le.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []ListEntryRow
	for rows.Next() {
		var row ListEntryRow
		var entryID, schoolID, deadlineID sql.NullInt64
		var schoolName sql.NullString
		if err := rows.Scan(&row.ListID, &row.ListName, &entryID, &schoolID, &schoolName, &deadlineID); err != nil {
			return nil, fmt.Errorf("リスト行のスキャンに失敗しました: %w", err)
		}
		row.EntryID = entryID.Int64
		row.SchoolID = schoolID.Int64
		row.SchoolName = schoolName.String
		row.DeadlineID = nullInt64Ptr(deadlineID)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リスト行の走査に失敗しました: %w", err)
	}
	return result, nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// compile-time interface check
var _ ListRepository = (*PostgresListRepo)(nil)
