package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/collegetrack/internal/model"
)

const userColumns = `id, auth_subject_id, email, name,
	calendar_access_token, calendar_refresh_token, calendar_token_expires,
	created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var accessToken, refreshToken sql.NullString
	var expires sql.NullTime

	err := row.Scan(
		&user.ID, &user.AuthSubjectID, &user.Email, &user.Name,
		&accessToken, &refreshToken, &expires,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.CalendarAccessToken = accessToken.String
	user.CalendarRefreshToken = refreshToken.String
	if expires.Valid {
		t := expires.Time
		user.CalendarTokenExpires = &t
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByAuthSubject は外部IdPのsubjectでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByAuthSubject(ctx context.Context, subject string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE auth_subject_id = $1`, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by auth subject: %w", err)
	}
	return user, nil
}

// Upsert はauth_subject_idをキーにユーザーを作成し、既存ならemailとnameを上書きする。
// Webhookの再送で同じイベントが複数回届いても1件に収束する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (auth_subject_id, email, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (auth_subject_id) DO UPDATE SET
		     email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     updated_at = now()
		 RETURNING id, created_at, updated_at`,
		user.AuthSubjectID, user.Email, user.Name,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", translatePQError(err))
	}
	return nil
}

// Update はセレクタで指定したユーザーをpatchで部分更新する。
// 対象が存在しない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, selector UserSelector, patch UserPatch) (*model.User, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.ClearCalendar {
		sets = append(sets,
			"calendar_access_token = NULL",
			"calendar_refresh_token = NULL",
			"calendar_token_expires = NULL",
		)
	} else {
		if patch.CalendarAccessToken != nil {
			add("calendar_access_token", nullableString(*patch.CalendarAccessToken))
		}
		if patch.CalendarRefreshToken != nil {
			add("calendar_refresh_token", nullableString(*patch.CalendarRefreshToken))
		}
		if patch.CalendarTokenExpires != nil {
			add("calendar_token_expires", patch.CalendarTokenExpires.UTC())
		}
	}
	if len(sets) == 0 {
		return nil, errors.New("empty user patch")
	}
	sets = append(sets, "updated_at = now()")

	var where string
	switch {
	case selector.ID != 0:
		args = append(args, selector.ID)
		where = fmt.Sprintf("id = $%d", len(args))
	case selector.AuthSubjectID != "":
		args = append(args, selector.AuthSubjectID)
		where = fmt.Sprintf("auth_subject_id = $%d", len(args))
	default:
		return nil, errors.New("empty user selector")
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where + ` RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", translatePQError(err))
	}
	return user, nil
}

// DeleteByAuthSubject は外部IdPのsubjectでユーザーを削除する。
func (r *PostgresUserRepo) DeleteByAuthSubject(ctx context.Context, subject string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE auth_subject_id = $1`,
		subject,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// nullableString は空文字列をNULLとして保存する。
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
