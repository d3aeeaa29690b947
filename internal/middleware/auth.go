// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/collegetrack/internal/model"
)

// sessionCookieName はClerkがブラウザに設定するセッショントークンのCookie名。
const sessionCookieName = "__session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userContextKey = contextKey("user")

// UserResolver はトークンのsubjectからローカルユーザーを引く。
// user.Serviceの部分集合として定義する。
type UserResolver interface {
	FindByAuthSubject(ctx context.Context, authSubjectID string) (*model.User, error)
}

// ParseClerkPublicKey はPEM形式の公開鍵を読み込む。
// 環境変数で改行が "\n" とエスケープされている場合も受け付ける。
func ParseClerkPublicKey(pemStr string) (*rsa.PublicKey, error) {
	pemStr = strings.ReplaceAll(strings.TrimSpace(pemStr), `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Clerk public key: %w", err)
	}
	return key, nil
}

// AuthConfig はセッショントークンの追加検証の設定。
type AuthConfig struct {
	// Issuer はissの期待値。空の場合は検証しない。
	Issuer string
	// AuthorizedParties はazpとして許可するオリジン。空の場合は検証しない。
	AuthorizedParties []string
}

// sessionClaims はClerkのセッショントークンのクレーム。
type sessionClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
}

// NewAuthMiddleware はClerkのセッショントークン（RS256 JWT）を検証し、
// 対応するローカルユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// トークンは Authorization: Bearer ヘッダー、なければ __session Cookie から読む。
// azpを持つトークンは発行元オリジンが許可リストに含まれる場合のみ受け付ける。
// トークン不正・ユーザー未登録の場合は401を返す。
func NewAuthMiddleware(key *rsa.PublicKey, users UserResolver, cfg AuthConfig) func(next http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	allowedParties := make(map[string]struct{}, len(cfg.AuthorizedParties))
	for _, p := range cfg.AuthorizedParties {
		allowedParties[strings.TrimRight(p, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				WriteUnauthorized(w)
				return
			}

			var claims sessionClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				slog.Debug("invalid session token",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				WriteUnauthorized(w)
				return
			}
			if claims.Subject == "" {
				WriteUnauthorized(w)
				return
			}
			if claims.AuthorizedParty != "" && len(allowedParties) > 0 {
				if _, ok := allowedParties[strings.TrimRight(claims.AuthorizedParty, "/")]; !ok {
					slog.Warn("許可されていないazpのトークンを拒否しました",
						slog.String("request_id", RequestIDFromContext(r.Context())),
						slog.String("azp", claims.AuthorizedParty),
					)
					WriteUnauthorized(w)
					return
				}
			}

			user, err := users.FindByAuthSubject(r.Context(), claims.Subject)
			if err != nil {
				slog.Error("failed to resolve user",
					slog.String("auth_subject_id", claims.Subject),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				// Webhookによる同期前のユーザー
				WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, errors.New("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// ロギングミドルウェアの内側で呼ばれた場合はログ用にユーザーIDも記録する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if info := requestInfoFromContext(ctx); info != nil {
		info.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}
