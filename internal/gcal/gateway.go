// Package gcal はGoogleカレンダーとのOAuthトークン交換・更新とイベント作成を提供する。
package gcal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/collegetrack/internal/model"
)

const defaultTimeout = 10 * time.Second

// Gateway は外部カレンダープロバイダーとの通信インターフェース。
type Gateway interface {
	// AuthCodeURL は同意画面へのリダイレクトURLを生成する。
	AuthCodeURL(state string) string

	// ExchangeCode は認可コードをトークンに交換する。失敗時はUpstreamAuthErrorを返す。
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)

	// RefreshToken はリフレッシュトークンでアクセストークンを更新する。失敗時はUpstreamAuthErrorを返す。
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)

	// CreateRemoteEvent はカレンダーにイベントを作成し、そのIDを返す。失敗時はUpstreamAPIErrorを返す。
	CreateRemoteEvent(ctx context.Context, accessToken string, event RemoteEvent) (string, error)
}

// TokenSet はトークンエンドポイントの応答。ExpiryがゼロのときはExpires未指定。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ExpiryPtr はExpiryをnil許容で返す。
func (t *TokenSet) ExpiryPtr() *time.Time {
	if t.Expiry.IsZero() {
		return nil
	}
	e := t.Expiry.UTC()
	return &e
}

// RemoteEvent は外部カレンダーに作成するイベント。
type RemoteEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// DescriptionFormatter は保存済みの説明文をGoogleカレンダーが表示するHTMLに変換する。
type DescriptionFormatter interface {
	DescriptionHTML(s string) string
}

// GoogleConfig はGoogleGatewayの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
	TimeZone     string
	Timeout      time.Duration
	// nilの場合、説明文はそのまま送信する
	Description  DescriptionFormatter

	// テスト用にオーバーライド可能
	AuthURL          string
	TokenURL         string
	CalendarEndpoint string
	HTTPClient       *http.Client
}

// GoogleGateway はx/oauth2とcalendar/v3によるGateway実装。
type GoogleGateway struct {
	oauth      *oauth2.Config
	calendarID string
	timeZone   string
	endpoint   string
	httpClient *http.Client
	describe   DescriptionFormatter
}

// NewGoogleGateway はGoogleGatewayを生成する。
func NewGoogleGateway(cfg GoogleConfig) *GoogleGateway {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &GoogleGateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
		endpoint:   cfg.CalendarEndpoint,
		describe:   cfg.Description,
		httpClient: client,
	}
}

// AuthCodeURL はオフラインアクセスと再同意を要求する認可URLを生成する。
// リフレッシュトークンを毎回受け取るためにprompt=consentを付ける。
func (g *GoogleGateway) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode は認可コードをトークンに交換する。
func (g *GoogleGateway) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	token, err := g.oauth.Exchange(g.clientContext(ctx), code)
	if err != nil {
		return nil, model.NewUpstreamAuthError("exchange_code", err)
	}
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// RefreshToken はアクセストークンを更新する。
// プロバイダーが新しいリフレッシュトークンを返さない場合は渡されたものを維持する。
func (g *GoogleGateway) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	source := g.oauth.TokenSource(g.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, model.NewUpstreamAuthError("refresh_token", err)
	}

	result := &TokenSet{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
	}
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		result.RefreshToken = token.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}
	return result, nil
}

// CreateRemoteEvent は設定されたカレンダーにイベントを作成する。リトライはしない。
func (g *GoogleGateway) CreateRemoteEvent(ctx context.Context, accessToken string, event RemoteEvent) (string, error) {
	client := oauth2.NewClient(g.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return "", model.NewUpstreamAPIError("create_event", fmt.Errorf("failed to create calendar service: %w", err))
	}

	description := event.Description
	if g.describe != nil {
		description = g.describe.DescriptionHTML(description)
	}

	created, err := svc.Events.Insert(g.calendarID, &calendar.Event{
		Summary:     event.Title,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: g.timeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: g.timeZone,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", model.NewUpstreamAPIError("create_event", err)
	}
	return created.Id, nil
}

// clientContext はx/oauth2が使うHTTPクライアントをcontextに載せる。
func (g *GoogleGateway) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// TokenExpired はアクセストークンの有効期限が切れているかを返す。
// 期限が記録されていない場合は有効として扱う。
func TokenExpired(expires *time.Time, now time.Time) bool {
	if expires == nil {
		return false
	}
	return now.After(*expires)
}

// compile-time interface check
var _ Gateway = (*GoogleGateway)(nil)
