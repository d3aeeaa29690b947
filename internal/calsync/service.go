// Package calsync はユーザーのGoogleカレンダー連携（接続・解除・イベント作成）を扱う。
// 外部カレンダーの失敗はリクエスト全体を失敗させず、未接続の結果として返す。
package calsync

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/collegetrack/internal/gcal"
	"github.com/hitoshi/collegetrack/internal/metrics"
	"github.com/hitoshi/collegetrack/internal/model"
	"github.com/hitoshi/collegetrack/internal/repository"
)

// 縮退時にクライアントへ返すメッセージ
const (
	MsgNotConnected    = "Google Calendar not connected"
	MsgNoRefreshToken  = "Google Calendar token expired and no refresh token available"
	MsgRefreshFailed   = "Failed to refresh Google token"
	MsgCreateFailed    = "Failed to create Google Calendar event"
	MsgCredentialError = "Failed to read stored Google Calendar credentials"
	MsgInternalError   = "Internal server error"
)

// Vault はトークンの暗号化・復号インターフェース。
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// UserStore はカレンダー連携情報の保存先。
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, selector repository.UserSelector, patch repository.UserPatch) (*model.User, error)
}

// EventScheduler はローカルイベントに外部イベントIDを記録する。
type EventScheduler interface {
	UpdateSchedule(ctx context.Context, userID, eventID int64, patch repository.SchedulePatch) error
}

// Recorder は同期結果の計測インターフェース。
type Recorder interface {
	RecordCalendarSync(outcome string)
	RecordTokenRefresh(result string)
	RecordUpstreamLatency(operation string, duration time.Duration)
}

// CreateRemoteInput は外部カレンダーに作成するイベント。
// EventIDを指定すると、作成された外部イベントIDをローカルイベントに記録する。
type CreateRemoteInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	EventID     *int64
}

// SyncResult は外部カレンダー同期の結果。失敗時もSuccessはtrueで、Connectedがfalseになる。
type SyncResult struct {
	Success       bool
	Connected     bool
	GoogleEventID string
	Message       string
}

// Service はカレンダー連携のサービス層。
type Service struct {
	gateway gcal.Gateway
	vault   Vault
	users   UserStore
	events  EventScheduler
	locker  gcal.RefreshLocker
	metrics Recorder
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// lockerがnilの場合はロックなしで動作する。metricsはnilでもよい。
func NewService(
	gateway gcal.Gateway,
	vault Vault,
	users UserStore,
	events EventScheduler,
	locker gcal.RefreshLocker,
	metrics Recorder,
) *Service {
	if locker == nil {
		locker = gcal.NoopRefreshLocker{}
	}
	return &Service{
		gateway: gateway,
		vault:   vault,
		users:   users,
		events:  events,
		locker:  locker,
		metrics: metrics,
		now:     time.Now,
	}
}

// AuthCodeURL は同意画面へのURLを返す。
func (s *Service) AuthCodeURL(state string) string {
	return s.gateway.AuthCodeURL(state)
}

// Connect は認可コードをトークンに交換し、暗号化して保存する。
func (s *Service) Connect(ctx context.Context, user *model.User, code string) error {
	if strings.TrimSpace(code) == "" {
		return model.NewValidationError("認可コードがありません")
	}

	started := s.now()
	tokens, err := s.gateway.ExchangeCode(ctx, code)
	s.observe("exchange_code", started)
	if err != nil {
		return err
	}

	patch, err := s.tokenPatch(tokens)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, repository.UserSelector{ID: user.ID}, patch); err != nil {
		return fmt.Errorf("カレンダー連携情報の保存に失敗しました: %w", err)
	}

	slog.Info("Googleカレンダーを接続しました", slog.Int64("user_id", user.ID))
	return nil
}

// Disconnect は保存済みのトークンを削除する。
func (s *Service) Disconnect(ctx context.Context, user *model.User) error {
	if _, err := s.users.Update(ctx, repository.UserSelector{ID: user.ID}, repository.UserPatch{ClearCalendar: true}); err != nil {
		return fmt.Errorf("カレンダー連携情報の削除に失敗しました: %w", err)
	}
	slog.Info("Googleカレンダーの接続を解除しました", slog.Int64("user_id", user.ID))
	return nil
}

// CreateRemoteEvent は外部カレンダーにイベントを作成する。
// 返すエラーは入力不正のみで、外部カレンダー側の失敗はSyncResultで表す。
// ローカルのイベントは外部の失敗によって変更しない。
func (s *Service) CreateRemoteEvent(ctx context.Context, user *model.User, in CreateRemoteInput) (*SyncResult, error) {
	if strings.TrimSpace(in.Title) == "" || in.Start.IsZero() || in.End.IsZero() {
		return nil, model.NewValidationError("title, start, end は必須です")
	}
	if in.Start.After(in.End) {
		return nil, model.NewValidationError("start は end 以前の日時を指定してください")
	}

	if !user.CalendarConnected() {
		return s.degrade(user, metrics.SyncOutcomeNotConnected, MsgNotConnected, nil), nil
	}

	current := user
	if gcal.TokenExpired(user.CalendarTokenExpires, s.now()) {
		if user.CalendarRefreshToken == "" {
			return s.degrade(user, metrics.SyncOutcomeNoRefresh, MsgNoRefreshToken, nil), nil
		}
		refreshed, result := s.refresh(ctx, user)
		if result != nil {
			return result, nil
		}
		current = refreshed
	}

	accessToken, err := s.vault.Decrypt(current.CalendarAccessToken)
	if err != nil {
		return s.degrade(user, metrics.SyncOutcomeDecryptFailed, MsgCredentialError, err), nil
	}

	started := s.now()
	remoteID, err := s.gateway.CreateRemoteEvent(ctx, accessToken, gcal.RemoteEvent{
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
	})
	s.observe("create_event", started)
	if err != nil {
		return s.degrade(user, metrics.SyncOutcomeCreateFailed, MsgCreateFailed, err), nil
	}

	if in.EventID != nil {
		if err := s.events.UpdateSchedule(ctx, user.ID, *in.EventID, repository.SchedulePatch{GoogleEventID: &remoteID}); err != nil {
			slog.Warn("外部イベントIDの記録に失敗しました",
				slog.Int64("user_id", user.ID),
				slog.Int64("event_id", *in.EventID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCalendarSync(metrics.SyncOutcomeCreated)
	}
	slog.Info("Googleカレンダーにイベントを作成しました",
		slog.Int64("user_id", user.ID),
		slog.String("google_event_id", remoteID),
	)
	return &SyncResult{Success: true, Connected: true, GoogleEventID: remoteID}, nil
}

// refresh はアクセストークンを更新して保存し、更新後のユーザーを返す。
// 失敗した場合は縮退結果を返す。
// ロック取得後にユーザーを読み直し、他のリクエストが更新済みであれば再更新しない。
func (s *Service) refresh(ctx context.Context, user *model.User) (*model.User, *SyncResult) {
	unlock, err := s.locker.Lock(ctx, strconv.FormatInt(user.ID, 10))
	if err != nil {
		slog.Warn("トークン更新ロックを取得できませんでした。ロックなしで続行します",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		unlock = func() {}
	}
	defer unlock()

	latest, err := s.users.FindByID(ctx, user.ID)
	if err != nil || latest == nil {
		latest = user
	}
	if latest.CalendarConnected() && !gcal.TokenExpired(latest.CalendarTokenExpires, s.now()) {
		return latest, nil
	}
	if latest.CalendarRefreshToken == "" {
		return nil, s.degrade(user, metrics.SyncOutcomeNoRefresh, MsgNoRefreshToken, nil)
	}

	refreshToken, err := s.vault.Decrypt(latest.CalendarRefreshToken)
	if err != nil {
		return nil, s.degrade(user, metrics.SyncOutcomeDecryptFailed, MsgCredentialError, err)
	}

	started := s.now()
	tokens, err := s.gateway.RefreshToken(ctx, refreshToken)
	s.observe("refresh_token", started)
	if err != nil {
		s.recordRefresh("failure")
		return nil, s.degrade(user, metrics.SyncOutcomeRefreshFailed, MsgRefreshFailed, err)
	}
	s.recordRefresh("success")

	patch, err := s.tokenPatch(tokens)
	if err != nil {
		return nil, s.degrade(user, metrics.SyncOutcomeRefreshFailed, MsgInternalError, err)
	}
	updated, err := s.users.Update(ctx, repository.UserSelector{ID: user.ID}, patch)
	if err != nil || updated == nil {
		if err == nil {
			err = model.NewUserNotFoundError()
		}
		return nil, s.degrade(user, metrics.SyncOutcomeRefreshFailed, MsgInternalError, err)
	}

	slog.Info("アクセストークンを更新しました",
		slog.Int64("user_id", user.ID),
		slog.Time("expires", tokens.Expiry),
	)
	return updated, nil
}

// tokenPatch はトークンを暗号化して保存用のpatchを作る。
func (s *Service) tokenPatch(tokens *gcal.TokenSet) (repository.UserPatch, error) {
	access, err := s.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return repository.UserPatch{}, fmt.Errorf("アクセストークンの暗号化に失敗しました: %w", err)
	}
	patch := repository.UserPatch{
		CalendarAccessToken:  &access,
		CalendarTokenExpires: tokens.ExpiryPtr(),
	}
	if tokens.RefreshToken != "" {
		refresh, err := s.vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			return repository.UserPatch{}, fmt.Errorf("リフレッシュトークンの暗号化に失敗しました: %w", err)
		}
		patch.CalendarRefreshToken = &refresh
	}
	return patch, nil
}

func (s *Service) degrade(user *model.User, outcome, message string, cause error) *SyncResult {
	attrs := []any{
		slog.Int64("user_id", user.ID),
		slog.String("outcome", outcome),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	slog.Warn("Googleカレンダー同期を縮退しました", attrs...)

	if s.metrics != nil {
		s.metrics.RecordCalendarSync(outcome)
	}
	return &SyncResult{Success: true, Connected: false, Message: message}
}

func (s *Service) recordRefresh(result string) {
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(result)
	}
}

func (s *Service) observe(operation string, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordUpstreamLatency(operation, s.now().Sub(started))
	}
}
