// Package listentry は学校のリストへの割り当てと出願締切の選択を管理する。
package listentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// UpsertRecorder はエントリupsertの計測インターフェース。
type UpsertRecorder interface {
	RecordListEntryUpsert(action string)
}

// AssignInput は学校の割り当て入力。
// ListID と NewListName はどちらか一方のみを指定する。NewListNameの場合はリストを同時に作成する。
type AssignInput struct {
	SchoolID    int64
	ListID      *int64
	NewListName *string
	DeadlineID  *int64
}

// AssignResult は割り当ての結果。CreatedListはリストを同時に作成した場合のみ設定される。
type AssignResult struct {
	Entry       *model.ListEntry
	Action      model.UpsertAction
	CreatedList *model.List
}

// ListWithSchools はリストと所属する学校。
type ListWithSchools struct {
	ListID   int64
	ListName string
	Schools  []ListedSchool
}

// ListedSchool はリストに所属する学校と選択中の締切。
type ListedSchool struct {
	EntryID    int64
	SchoolID   int64
	SchoolName string
	DeadlineID *int64
}

// Service はリストエントリのサービス層。
type Service struct {
	listRepo  repository.ListRepository
	entryRepo repository.ListEntryRepository
	catalog   repository.CatalogRepository
	metrics   UpsertRecorder
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(
	listRepo repository.ListRepository,
	entryRepo repository.ListEntryRepository,
	catalog repository.CatalogRepository,
	metrics UpsertRecorder,
) *Service {
	return &Service{
		listRepo:  listRepo,
		entryRepo: entryRepo,
		catalog:   catalog,
		metrics:   metrics,
	}
}

// CreateOrUpdate は(user, school)の割り当てを作成または上書きする。
// 既に割り当てがある場合はリストと締切をその場で置き換え、Actionはupdatedになる。
func (s *Service) CreateOrUpdate(ctx context.Context, userID int64, in AssignInput) (*AssignResult, error) {
	if (in.ListID == nil) == (in.NewListName == nil) {
		return nil, model.NewValidationError("list_id または new_list_name のどちらか一方を指定してください")
	}
	if in.SchoolID <= 0 {
		return nil, model.NewValidationError("school_id は必須です")
	}

	school, err := s.catalog.FindSchool(ctx, in.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("学校の取得に失敗しました: %w", err)
	}
	if school == nil {
		return nil, model.NewSchoolNotFoundError(in.SchoolID)
	}

	if in.DeadlineID != nil {
		deadline, err := s.catalog.FindDeadline(ctx, *in.DeadlineID)
		if err != nil {
			return nil, fmt.Errorf("締切の取得に失敗しました: %w", err)
		}
		if deadline == nil {
			return nil, model.NewDeadlineNotFoundError(*in.DeadlineID)
		}
		if deadline.SchoolID != in.SchoolID {
			return nil, model.NewValidationError("締切が指定された学校のものではありません")
		}
	}

	var createdList *model.List
	var listID int64
	if in.ListID != nil {
		list, err := s.listRepo.FindByIDForUser(ctx, userID, *in.ListID)
		if err != nil {
			return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
		}
		if list == nil {
			return nil, model.NewListNotFoundError(*in.ListID)
		}
		listID = list.ID
	} else {
		createdList, err = s.CreateList(ctx, userID, *in.NewListName)
		if err != nil {
			return nil, err
		}
		listID = createdList.ID
	}

	entry := &model.ListEntry{
		UserID:     userID,
		ListID:     listID,
		SchoolID:   in.SchoolID,
		DeadlineID: in.DeadlineID,
	}
	inserted, err := s.upsert(ctx, entry)
	if err != nil {
		if createdList != nil {
			s.discardList(ctx, userID, createdList.ID)
		}
		return nil, translateWriteError(err, in, listID)
	}

	action := model.ActionUpdated
	if inserted {
		action = model.ActionCreated
	}
	if s.metrics != nil {
		s.metrics.RecordListEntryUpsert(string(action))
	}
	slog.Info("リストエントリを保存しました",
		slog.Int64("user_id", userID),
		slog.Int64("school_id", in.SchoolID),
		slog.Int64("list_id", listID),
		slog.String("action", string(action)),
	)

	return &AssignResult{Entry: entry, Action: action, CreatedList: createdList}, nil
}

// upsert は既存の割り当てがあれば更新し、なければ作成する。
func (s *Service) upsert(ctx context.Context, entry *model.ListEntry) (bool, error) {
	existing, err := s.entryRepo.FindByUserAndSchool(ctx, entry.UserID, entry.SchoolID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		updated, err := s.entryRepo.UpdateByUserAndSchool(ctx, entry)
		if err != nil {
			return false, err
		}
		if updated {
			return false, nil
		}
	}
	return s.entryRepo.Insert(ctx, entry)
}

// discardList はエントリ保存に失敗したときに同時作成したリストを取り消す。
func (s *Service) discardList(ctx context.Context, userID, listID int64) {
	if err := s.listRepo.DeleteForUser(ctx, userID, listID); err != nil {
		slog.Error("作成したリストの取り消しに失敗しました",
			slog.Int64("user_id", userID),
			slog.Int64("list_id", listID),
			slog.String("error", err.Error()),
		)
	}
}

func translateWriteError(err error, in AssignInput, listID int64) error {
	var fkErr *repository.ForeignKeyError
	if errors.As(err, &fkErr) {
		switch fkErr.Constraint {
		case "list_entries_school_id_fkey":
			return model.NewSchoolNotFoundError(in.SchoolID)
		case "list_entries_list_id_fkey":
			return model.NewListNotFoundError(listID)
		case "list_entries_deadline_id_fkey":
			if in.DeadlineID != nil {
				return model.NewDeadlineNotFoundError(*in.DeadlineID)
			}
		case "list_entries_user_id_fkey":
			return model.NewUserNotFoundError()
		}
	}
	return fmt.Errorf("リストエントリの保存に失敗しました: %w", err)
}

// Remove はユーザー所有のエントリを削除する。存在しない場合は何もしない。
func (s *Service) Remove(ctx context.Context, userID, entryID int64) error {
	deleted, err := s.entryRepo.DeleteForUser(ctx, userID, entryID)
	if err != nil {
		return fmt.Errorf("リストエントリの削除に失敗しました: %w", err)
	}
	if !deleted {
		slog.Debug("削除対象のリストエントリが存在しません",
			slog.Int64("user_id", userID),
			slog.Int64("entry_id", entryID),
		)
	}
	return nil
}

// CreateList はリストを作成する。同名のリストがあっても作成する。
func (s *Service) CreateList(ctx context.Context, userID int64, name string) (*model.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("リスト名は必須です")
	}
	if err := model.CheckLength("リスト名", name, model.MaxListNameLength); err != nil {
		return nil, err
	}
	list := &model.List{UserID: userID, Name: name}
	if err := s.listRepo.Create(ctx, list); err != nil {
		var tooLong *repository.ValueTooLongError
		if errors.As(err, &tooLong) {
			return nil, model.NewValidationError("リスト名が長すぎます")
		}
		return nil, fmt.Errorf("リストの作成に失敗しました: %w", err)
	}
	return list, nil
}

// ListsWithEntries はユーザーの全リストを所属する学校とともに返す。空のリストも含む。
func (s *Service) ListsWithEntries(ctx context.Context, userID int64) ([]ListWithSchools, error) {
	rows, err := s.listRepo.ListWithEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}

	var lists []ListWithSchools
	index := make(map[int64]int)
	for _, row := range rows {
		i, ok := index[row.ListID]
		if !ok {
			i = len(lists)
			index[row.ListID] = i
			lists = append(lists, ListWithSchools{ListID: row.ListID, ListName: row.ListName, Schools: []ListedSchool{}})
		}
		if row.EntryID == 0 {
			continue
		}
		lists[i].Schools = append(lists[i].Schools, ListedSchool{
			EntryID:    row.EntryID,
			SchoolID:   row.SchoolID,
			SchoolName: row.SchoolName,
			DeadlineID: row.DeadlineID,
		})
	}
	return lists, nil
}

// SchoolDashboard はエントリごとの学校・リスト・選択中の締切・サプリメント数を返す。
func (s *Service) SchoolDashboard(ctx context.Context, userID int64) ([]repository.SchoolDashboardRow, error) {
	rows, err := s.entryRepo.SchoolDashboard(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("学校ダッシュボードの取得に失敗しました: %w", err)
	}
	return rows, nil
}
