package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/collegetrack/internal/model"
)

// PostgresListEntryRepo はPostgreSQLを使用したリストエントリリポジトリ。
type PostgresListEntryRepo struct {
	db *sql.DB
}

// NewPostgresListEntryRepo はPostgresListEntryRepoを生成する。
func NewPostgresListEntryRepo(db *sql.DB) *PostgresListEntryRepo {
	return &PostgresListEntryRepo{db: db}
}

// FindByUserAndSchool は(user_id, school_id)の割り当てを取得する。見つからない場合はnilを返す。
func (r *PostgresListEntryRepo) FindByUserAndSchool(ctx context.Context, userID, schoolID int64) (*model.ListEntry, error) {
	e := &model.ListEntry{}
	var deadlineID sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, list_id, school_id, deadline_id, created_at, updated_at
		 FROM list_entries WHERE user_id = $1 AND school_id = $2`,
		userID, schoolID,
	).Scan(&e.ID, &e.UserID, &e.ListID, &e.SchoolID, &deadlineID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リストエントリの取得に失敗しました: %w", err)
	}
	e.DeadlineID = nullInt64Ptr(deadlineID)
	return e, nil
}

// Insert は割り当てを作成する。
// 先行する同時書き込みがあればUNIQUE(user_id, school_id)でON CONFLICTに入り、上書きになる。
// xmax = 0 は新規挿入された行であることを示す。
func (r *PostgresListEntryRepo) Insert(ctx context.Context, entry *model.ListEntry) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO list_entries (user_id, list_id, school_id, deadline_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, school_id) DO UPDATE SET
		     list_id = EXCLUDED.list_id,
		     deadline_id = EXCLUDED.deadline_id,
		     updated_at = now()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		entry.UserID, entry.ListID, entry.SchoolID, entry.DeadlineID,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("リストエントリの作成に失敗しました: %w", translatePQError(err))
	}
	return inserted, nil
}

// UpdateByUserAndSchool は既存の割り当てのlist_idとdeadline_idを上書きする。
func (r *PostgresListEntryRepo) UpdateByUserAndSchool(ctx context.Context, entry *model.ListEntry) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE list_entries SET list_id = $3, deadline_id = $4, updated_at = now()
		 WHERE user_id = $1 AND school_id = $2
		 RETURNING id, created_at, updated_at`,
		entry.UserID, entry.SchoolID, entry.ListID, entry.DeadlineID,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("リストエントリの更新に失敗しました: %w", translatePQError(err))
	}
	return true, nil
}

// DeleteForUser はユーザー所有のエントリを削除する。
func (r *PostgresListEntryRepo) DeleteForUser(ctx context.Context, userID, entryID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM list_entries WHERE id = $1 AND user_id = $2`,
		entryID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("リストエントリの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SchoolDashboard はエントリごとに学校・リスト・選択中の締切・サプリメント数を返す。
func (r *PostgresListEntryRepo) SchoolDashboard(ctx context.Context, userID int64) ([]SchoolDashboardRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT le.id, s.id, s.name, l.id, l.name, d.id, d.application_type, d.date,
		        (SELECT count(*) FROM supplements sp WHERE sp.school_id = s.id)
		 FROM list_entries le
		 JOIN lists l ON l.id = le.list_id
		 JOIN schools s ON s.id = le.school_id
		 LEFT JOIN deadlines d ON d.id = le.deadline_id
		 WHERE le.user_id = $1
		 ORDER BY l.id, le.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("学校ダッシュボードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []SchoolDashboardRow
	for rows.Next() {
		var row SchoolDashboardRow
		var deadlineID sql.NullInt64
		var appType sql.NullString
		var date sql.NullTime
		if err := rows.Scan(
			&row.EntryID, &row.SchoolID, &row.SchoolName, &row.ListID, &row.ListName,
			&deadlineID, &appType, &date, &row.SupplementCount,
		); err != nil {
			return nil, fmt.Errorf("学校ダッシュボード行のスキャンに失敗しました: %w", err)
		}
		row.DeadlineID = nullInt64Ptr(deadlineID)
		if appType.Valid {
			t := model.ApplicationType(appType.String)
			row.ApplicationType = &t
		}
		row.DeadlineDate = nullTimePtr(date)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("学校ダッシュボード行の走査に失敗しました: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ ListEntryRepository = (*PostgresListEntryRepo)(nil)
