package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// 処理対象のイベント種別
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// UserSyncer はWebhookから呼び出すユーザー操作。
type UserSyncer interface {
	Create(ctx context.Context, authSubjectID, email, name string) (*model.User, error)
	Update(ctx context.Context, selector repository.UserSelector, patch repository.UserPatch) (*model.User, error)
	DeleteByAuthSubject(ctx context.Context, authSubjectID string) error
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

// userData はuser.*イベントのdata部分。
type userData struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []emailAddress `json:"email_addresses"`
}

// fullName は姓名が両方揃っている場合のみ "名 姓" を返す。
func (d userData) fullName() string {
	if d.FirstName == "" || d.LastName == "" {
		return ""
	}
	return d.FirstName + " " + d.LastName
}

// primaryEmail は先頭のメールアドレスを返す。
func (d userData) primaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

// Processor は検証済みのWebhookイベントをユーザー操作に変換する。
type Processor struct {
	users UserSyncer
}

// NewProcessor はProcessorを生成する。
func NewProcessor(users UserSyncer) *Processor {
	return &Processor{users: users}
}

// Handle はイベントを処理する。対象外の種別や必須項目の欠けたイベントはスキップする。
func (p *Processor) Handle(ctx context.Context, evt *Event) error {
	switch evt.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
	default:
		slog.Debug("対象外のWebhookイベントを無視します", slog.String("type", evt.Type))
		return nil
	}

	var data userData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return fmt.Errorf("failed to parse webhook data: %w", err)
	}

	switch evt.Type {
	case EventUserCreated, EventUserUpdated:
		err := p.upsert(ctx, evt.Type, data, evt.Type == EventUserUpdated)
		// 再送しても保存できない入力は受理してスキップする
		if model.IsValidation(err) {
			slog.Warn("保存できないユーザー情報のイベントをスキップします",
				slog.String("type", evt.Type),
				slog.String("auth_subject_id", data.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return err
	default:
		if data.ID == "" {
			slog.Warn("IDのないuser.deletedイベントをスキップします")
			return nil
		}
		return p.users.DeleteByAuthSubject(ctx, data.ID)
	}
}

func (p *Processor) upsert(ctx context.Context, eventType string, data userData, update bool) error {
	name := data.fullName()
	email := data.primaryEmail()
	if data.ID == "" || name == "" || email == "" {
		slog.Warn("名前またはメールアドレスのないイベントをスキップします",
			slog.String("type", eventType),
			slog.String("auth_subject_id", data.ID),
		)
		return nil
	}

	if update {
		_, err := p.users.Update(ctx,
			repository.UserSelector{AuthSubjectID: data.ID},
			repository.UserPatch{Name: &name, Email: &email},
		)
		if !model.IsNotFound(err) {
			return err
		}
		// user.createdより先に届いた場合は作成する
		slog.Info("未登録ユーザーのuser.updatedを作成として処理します",
			slog.String("auth_subject_id", data.ID),
		)
	}

	_, err := p.users.Create(ctx, data.ID, email, name)
	return err
}
