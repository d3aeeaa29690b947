// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// Service はユーザー管理のサービス層。
// 外部IdPからの同期（作成・更新・削除）とカレンダー連携情報の保存を扱う。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Create はsubjectに対応するユーザーを作成する。
// 同じsubjectで再度呼ばれた場合はemailとnameを上書きする。
func (s *Service) Create(ctx context.Context, authSubjectID, email, name string) (*model.User, error) {
	if strings.TrimSpace(authSubjectID) == "" {
		return nil, model.NewValidationError("auth_subject_id は必須です")
	}
	if err := checkUserFields(authSubjectID, &email, &name); err != nil {
		return nil, err
	}
	user := &model.User{
		AuthSubjectID: authSubjectID,
		Email:         email,
		Name:          name,
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, translateWriteError("ユーザーの作成に失敗しました", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.Int64("user_id", user.ID),
		slog.String("auth_subject_id", authSubjectID),
	)
	return user, nil
}

// Update はセレクタで指定したユーザーを部分更新する。
// セレクタはIDかAuthSubjectIDのどちらか一方のみを指定する。
func (s *Service) Update(ctx context.Context, selector repository.UserSelector, patch repository.UserPatch) (*model.User, error) {
	hasID := selector.ID != 0
	hasSubject := selector.AuthSubjectID != ""
	if hasID == hasSubject {
		return nil, model.NewValidationError("id または auth_subject_id のどちらか一方を指定してください")
	}
	if patch.Empty() {
		return nil, model.NewValidationError("更新する項目がありません")
	}
	if err := checkUserFields(selector.AuthSubjectID, patch.Email, patch.Name); err != nil {
		return nil, err
	}

	user, err := s.userRepo.Update(ctx, selector, patch)
	if err != nil {
		return nil, translateWriteError("ユーザーの更新に失敗しました", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// DeleteByAuthSubject はsubjectに対応するユーザーを削除する。
// 所有するリスト・エントリ・イベントはCASCADE削除される。存在しない場合は何もしない。
func (s *Service) DeleteByAuthSubject(ctx context.Context, authSubjectID string) error {
	deleted, err := s.userRepo.DeleteByAuthSubject(ctx, authSubjectID)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !deleted {
		slog.Warn("削除対象のユーザーが存在しません",
			slog.String("auth_subject_id", authSubjectID),
		)
		return nil
	}

	slog.Info("ユーザーを削除しました",
		slog.String("auth_subject_id", authSubjectID),
	)
	return nil
}

// FindByAuthSubject はsubjectでユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) FindByAuthSubject(ctx context.Context, authSubjectID string) (*model.User, error) {
	user, err := s.userRepo.FindByAuthSubject(ctx, authSubjectID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByID はIDでユーザーを取得する。見つからない場合はUserNotFoundErrorを返す。
func (s *Service) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// checkUserFields はusersテーブルの文字列カラム長を検証する。nilの項目は対象外。
func checkUserFields(authSubjectID string, email, name *string) error {
	if err := model.CheckLength("auth_subject_id", authSubjectID, model.MaxAuthSubjectLength); err != nil {
		return err
	}
	if email != nil {
		if err := model.CheckLength("email", *email, model.MaxEmailLength); err != nil {
			return err
		}
	}
	if name != nil {
		if err := model.CheckLength("name", *name, model.MaxUserNameLength); err != nil {
			return err
		}
	}
	return nil
}

func translateWriteError(msg string, err error) error {
	var tooLong *repository.ValueTooLongError
	if errors.As(err, &tooLong) {
		return model.NewValidationError("入力値が長すぎます")
	}
	return fmt.Errorf("%s: %w", msg, err)
}
