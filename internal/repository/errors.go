package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード
const (
	pqForeignKeyViolation pq.ErrorCode = "23503"
	pqCheckViolation      pq.ErrorCode = "23514"
	pqStringTooLong       pq.ErrorCode = "22001"
)

// ForeignKeyError は参照先の行が存在しないことを表す。
// Constraint は違反した外部キー制約名（例: list_entries_school_id_fkey）。
type ForeignKeyError struct {
	Constraint string
	Err        error
}

func (e *ForeignKeyError) Error() string {
	return "foreign key violation: " + e.Constraint
}

func (e *ForeignKeyError) Unwrap() error {
	return e.Err
}

// CheckError はCHECK制約違反を表す。
type CheckError struct {
	Constraint string
	Err        error
}

func (e *CheckError) Error() string {
	return "check constraint violation: " + e.Constraint
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// ValueTooLongError は文字列がカラムの長さ上限を超えたことを表す。
// サービス層の長さチェックをすり抜けた場合の受け皿。
type ValueTooLongError struct {
	Err error
}

func (e *ValueTooLongError) Error() string {
	return "value too long: " + e.Err.Error()
}

func (e *ValueTooLongError) Unwrap() error {
	return e.Err
}

// translatePQError はlib/pqのエラーのうち、呼び出し側が型で判別すべきものを変換する。
// 該当しない場合は元のエラーをそのまま返す。
func translatePQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqForeignKeyViolation:
		return &ForeignKeyError{Constraint: pqErr.Constraint, Err: err}
	case pqCheckViolation:
		return &CheckError{Constraint: pqErr.Constraint, Err: err}
	case pqStringTooLong:
		return &ValueTooLongError{Err: err}
	}
	return err
}
