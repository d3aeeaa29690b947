package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/collegetrack/internal/model"
)

// PostgresCatalogRepo は学校・締切・サプリメントを参照するリポジトリ。
type PostgresCatalogRepo struct {
	db *sql.DB
}

// NewPostgresCatalogRepo はPostgresCatalogRepoを生成する。
func NewPostgresCatalogRepo(db *sql.DB) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

// FindSchool は学校を取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindSchool(ctx context.Context, id int64) (*model.School, error) {
	s := &model.School{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, city, state, size, tuition, acceptance_rate FROM schools WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.City, &s.State, &s.Size, &s.Tuition, &s.AcceptanceRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("学校の取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindDeadline は締切を取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindDeadline(ctx context.Context, id int64) (*model.Deadline, error) {
	d := &model.Deadline{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, school_id, application_type, date FROM deadlines WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.SchoolID, &d.ApplicationType, &d.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("締切の取得に失敗しました: %w", err)
	}
	return d, nil
}

// FindSupplement はサプリメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindSupplement(ctx context.Context, id int64) (*model.Supplement, error) {
	s := &model.Supplement{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, school_id, prompt, description, word_count FROM supplements WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.SchoolID, &s.Prompt, &s.Description, &s.WordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サプリメントの取得に失敗しました: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ CatalogRepository = (*PostgresCatalogRepo)(nil)
