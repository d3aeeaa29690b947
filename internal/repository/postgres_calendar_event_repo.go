package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/collegetrack/internal/model"
)

const eventColumns = `id, user_id, supplement_id, deadline_id, title, description,
	start_at, end_at, status, google_event_id, created_at, updated_at`

// PostgresCalendarEventRepo はPostgreSQLを使用したカレンダーイベントリポジトリ。
type PostgresCalendarEventRepo struct {
	db *sql.DB
}

// NewPostgresCalendarEventRepo はPostgresCalendarEventRepoを生成する。
func NewPostgresCalendarEventRepo(db *sql.DB) *PostgresCalendarEventRepo {
	return &PostgresCalendarEventRepo{db: db}
}

func scanEvent(row rowScanner, extra ...any) (*model.CalendarEvent, error) {
	e := &model.CalendarEvent{}
	var supplementID, deadlineID sql.NullInt64
	var status, googleEventID sql.NullString

	dest := []any{
		&e.ID, &e.UserID, &supplementID, &deadlineID, &e.Title, &e.Description,
		&e.Start, &e.End, &status, &googleEventID, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	e.SupplementID = nullInt64Ptr(supplementID)
	e.DeadlineID = nullInt64Ptr(deadlineID)
	if status.Valid {
		st := model.EventStatus(status.String)
		e.Status = &st
	}
	if googleEventID.Valid {
		id := googleEventID.String
		e.GoogleEventID = &id
	}
	return e, nil
}

// keyPredicate は論理キーに対応するWHERE句とON CONFLICTのターゲットを返す。
// ターゲットは部分ユニークインデックスの述語と一致させる必要がある。
func keyPredicate(key model.EventKey) (where, conflict string, targetID int64) {
	if key.SupplementID != nil {
		return "user_id = $1 AND supplement_id = $2",
			"(user_id, supplement_id) WHERE supplement_id IS NOT NULL",
			*key.SupplementID
	}
	return "user_id = $1 AND deadline_id = $2",
		"(user_id, deadline_id) WHERE deadline_id IS NOT NULL",
		*key.DeadlineID
}

// FindByKey は論理キーでイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresCalendarEventRepo) FindByKey(ctx context.Context, key model.EventKey) (*model.CalendarEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	where, _, targetID := keyPredicate(key)

	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE `+where,
		key.UserID, targetID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カレンダーイベントの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByIDForUser はユーザー所有のイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresCalendarEventRepo) FindByIDForUser(ctx context.Context, userID, eventID int64) (*model.CalendarEvent, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = $1 AND user_id = $2`,
		eventID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カレンダーイベントの取得に失敗しました: %w", err)
	}
	return e, nil
}

// Insert はイベントを作成する。
// 同時書き込みで先に行が作られていた場合はON CONFLICTで上書きし、inserted=falseを返す。
func (r *PostgresCalendarEventRepo) Insert(ctx context.Context, event *model.CalendarEvent) (bool, error) {
	key := event.Key()
	if err := key.Validate(); err != nil {
		return false, err
	}
	_, conflict, _ := keyPredicate(key)

	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO calendar_events
		     (user_id, supplement_id, deadline_id, title, description, start_at, end_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT `+conflict+` DO UPDATE SET
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     start_at = EXCLUDED.start_at,
		     end_at = EXCLUDED.end_at,
		     status = COALESCE(EXCLUDED.status, calendar_events.status),
		     updated_at = now()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		event.UserID, event.SupplementID, event.DeadlineID,
		event.Title, event.Description, event.Start.UTC(), event.End.UTC(), statusParam(event.Status),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("カレンダーイベントの作成に失敗しました: %w", translatePQError(err))
	}
	return inserted, nil
}

// UpdateByKey は既存イベントの内容を上書きする。Statusがnilなら既存値を維持する。
func (r *PostgresCalendarEventRepo) UpdateByKey(ctx context.Context, event *model.CalendarEvent) (bool, error) {
	key := event.Key()
	if err := key.Validate(); err != nil {
		return false, err
	}
	where, _, targetID := keyPredicate(key)

	err := r.db.QueryRowContext(ctx,
		`UPDATE calendar_events SET
		     title = $3, description = $4, start_at = $5, end_at = $6,
		     status = COALESCE($7::calendar_event_status, status),
		     updated_at = now()
		 WHERE `+where+`
		 RETURNING id, created_at, updated_at`,
		key.UserID, targetID,
		event.Title, event.Description, event.Start.UTC(), event.End.UTC(), statusParam(event.Status),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("カレンダーイベントの更新に失敗しました: %w", translatePQError(err))
	}
	return true, nil
}

// UpdateSchedule はイベントの日時・外部イベントID・状態を部分更新する。
func (r *PostgresCalendarEventRepo) UpdateSchedule(ctx context.Context, userID, eventID int64, patch SchedulePatch) (bool, error) {
	if patch.Empty() {
		return false, errors.New("empty schedule patch")
	}

	var start, end sql.NullTime
	if patch.Start != nil {
		start = sql.NullTime{Time: patch.Start.UTC(), Valid: true}
	}
	if patch.End != nil {
		end = sql.NullTime{Time: patch.End.UTC(), Valid: true}
	}
	var googleEventID sql.NullString
	if patch.GoogleEventID != nil {
		googleEventID = sql.NullString{String: *patch.GoogleEventID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE calendar_events SET
		     start_at = COALESCE($3, start_at),
		     end_at = COALESCE($4, end_at),
		     google_event_id = COALESCE($5, google_event_id),
		     status = COALESCE($6::calendar_event_status, status),
		     updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		eventID, userID, start, end, googleEventID, statusParam(patch.Status),
	)
	if err != nil {
		return false, fmt.Errorf("カレンダーイベントのスケジュール更新に失敗しました: %w", translatePQError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByUser はユーザーの全イベントを、関連する学校と所属リストとともに開始日時順で返す。
// 学校は supplement_id / deadline_id のどちらか設定されている方から辿る。
func (r *PostgresCalendarEventRepo) ListByUser(ctx context.Context, userID int64) ([]EventRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.supplement_id, e.deadline_id, e.title, e.description,
		        e.start_at, e.end_at, e.status, e.google_event_id, e.created_at, e.updated_at,
		        s.id, s.name, l.id, l.name
		 FROM calendar_events e
		 LEFT JOIN supplements sp ON sp.id = e.supplement_id
		 LEFT JOIN deadlines d ON d.id = e.deadline_id
		 JOIN schools s ON s.id = COALESCE(sp.school_id, d.school_id)
		 LEFT JOIN list_entries le ON le.user_id = e.user_id AND le.school_id = s.id
		 LEFT JOIN lists l ON l.id = le.list_id
		 WHERE e.user_id = $1
		 ORDER BY e.start_at, e.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("カレンダーイベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []EventRow
	for rows.Next() {
		var row EventRow
		var listID sql.NullInt64
		var listName sql.NullString
		e, err := scanEvent(rows, &row.SchoolID, &row.SchoolName, &listID, &listName)
		if err != nil {
			return nil, fmt.Errorf("カレンダーイベント行のスキャンに失敗しました: %w", err)
		}
		row.CalendarEvent = *e
		row.ListID = listID.Int64
		row.ListName = listName.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カレンダーイベント行の走査に失敗しました: %w", err)
	}
	return result, nil
}

// ListUnscheduled はイベント未作成のサプリメントと締切を返す。
// 締切は、エントリで締切が選択されていればその締切のみ、未選択なら学校の全締切を対象とする。
func (r *PostgresCalendarEventRepo) ListUnscheduled(ctx context.Context, userID int64) ([]UnscheduledRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT list_id, list_name, school_id, school_name, kind, item_id,
		        prompt, description, word_count, application_type, deadline_date
		 FROM (
		     SELECT l.id AS list_id, l.name AS list_name, le.id AS entry_id,
		            s.id AS school_id, s.name AS school_name,
		            'supplement' AS kind, 0 AS kind_order, sp.id AS item_id,
		            sp.prompt, sp.description, sp.word_count,
		            NULL::text AS application_type, NULL::date AS deadline_date
		     FROM lists l
		     JOIN list_entries le ON le.list_id = l.id AND le.user_id = l.user_id
		     JOIN schools s ON s.id = le.school_id
		     JOIN supplements sp ON sp.school_id = s.id
		     WHERE l.user_id = $1
		       AND NOT EXISTS (
		           SELECT 1 FROM calendar_events e
		           WHERE e.user_id = $1 AND e.supplement_id = sp.id
		       )
		     UNION ALL
		     SELECT l.id, l.name, le.id,
		            s.id, s.name,
		            'deadline', 1, d.id,
		            NULL, NULL, NULL,
		            d.application_type::text, d.date
		     FROM lists l
		     JOIN list_entries le ON le.list_id = l.id AND le.user_id = l.user_id
		     JOIN schools s ON s.id = le.school_id
		     JOIN deadlines d ON d.school_id = s.id
		         AND (le.deadline_id IS NULL OR le.deadline_id = d.id)
		     WHERE l.user_id = $1
		       AND NOT EXISTS (
		           SELECT 1 FROM calendar_events e
		           WHERE e.user_id = $1 AND e.deadline_id = d.id
		       )
		 ) u
		 ORDER BY list_id, entry_id, kind_order, item_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("未スケジュール項目の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []UnscheduledRow
	for rows.Next() {
		var row UnscheduledRow
		var kind string
		var itemID int64
		var prompt, description, wordCount, appType sql.NullString
		var date sql.NullTime
		if err := rows.Scan(
			&row.ListID, &row.ListName, &row.SchoolID, &row.SchoolName, &kind, &itemID,
			&prompt, &description, &wordCount, &appType, &date,
		); err != nil {
			return nil, fmt.Errorf("未スケジュール行のスキャンに失敗しました: %w", err)
		}
		row.Kind = UnscheduledKind(kind)
		switch row.Kind {
		case UnscheduledSupplement:
			row.Supplement = &model.Supplement{
				ID:          itemID,
				SchoolID:    row.SchoolID,
				Prompt:      prompt.String,
				Description: description.String,
				WordCount:   wordCount.String,
			}
		case UnscheduledDeadline:
			row.Deadline = &model.Deadline{
				ID:              itemID,
				SchoolID:        row.SchoolID,
				ApplicationType: model.ApplicationType(appType.String),
				Date:            date.Time,
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("未スケジュール行の走査に失敗しました: %w", err)
	}
	return result, nil
}

// SupplementDashboard はユーザーのリストに含まれる全サプリメントをイベント情報とともに返す。
func (r *PostgresCalendarEventRepo) SupplementDashboard(ctx context.Context, userID int64) ([]SupplementDashboardRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sp.id, sp.school_id, sp.prompt, sp.description, sp.word_count,
		        s.name, l.id, l.name,
		        e.id, e.start_at, e.end_at, e.status
		 FROM list_entries le
		 JOIN lists l ON l.id = le.list_id
		 JOIN schools s ON s.id = le.school_id
		 JOIN supplements sp ON sp.school_id = s.id
		 LEFT JOIN calendar_events e ON e.user_id = le.user_id AND e.supplement_id = sp.id
		 WHERE le.user_id = $1
		 ORDER BY l.id, le.id, sp.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("サプリメントダッシュボードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []SupplementDashboardRow
	for rows.Next() {
		var row SupplementDashboardRow
		var eventID sql.NullInt64
		var start, end sql.NullTime
		var status sql.NullString
		if err := rows.Scan(
			&row.Supplement.ID, &row.Supplement.SchoolID, &row.Supplement.Prompt,
			&row.Supplement.Description, &row.Supplement.WordCount,
			&row.SchoolName, &row.ListID, &row.ListName,
			&eventID, &start, &end, &status,
		); err != nil {
			return nil, fmt.Errorf("サプリメントダッシュボード行のスキャンに失敗しました: %w", err)
		}
		row.EventID = nullInt64Ptr(eventID)
		row.EventStart = nullTimePtr(start)
		row.EventEnd = nullTimePtr(end)
		if status.Valid {
			st := model.EventStatus(status.String)
			row.EventStatus = &st
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サプリメントダッシュボード行の走査に失敗しました: %w", err)
	}
	return result, nil
}

// statusParam はstatusをSQLパラメータに変換する。nilはNULL。
func statusParam(s *model.EventStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

// compile-time interface check
var _ CalendarEventRepository = (*PostgresCalendarEventRepo)(nil)
