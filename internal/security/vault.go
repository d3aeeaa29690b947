// Package security は保存時のOAuthトークン暗号化とユーザー入力の無害化を提供する。
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hitoshi/collegetrack/internal/model"
)

// FallbackKey は ENCRYPTION_KEY 未設定時に使われる既知の鍵。本番で使用してはならない。
const FallbackKey = "fallback-key-change-in-production"

// TokenVault はAES-256-GCMでトークンを暗号化・復号する。
// 暗号文の形式は base64(nonce || ciphertext)。
type TokenVault struct {
	gcm          cipher.AEAD
	usesFallback bool
}

// NewTokenVault はプロセス共通のシークレットから鍵を導出してVaultを生成する。
// シークレットは任意長で、SHA-256で32バイトの鍵に変換する。
// 空の場合はFallbackKeyを使い、警告ログを出力する。
func NewTokenVault(secret string) (*TokenVault, error) {
	usesFallback := false
	if secret == "" {
		slog.Warn("ENCRYPTION_KEY is not set; using the insecure fallback key")
		secret = FallbackKey
		usesFallback = true
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode: %w", err)
	}

	return &TokenVault{gcm: gcm, usesFallback: usesFallback}, nil
}

// UsesFallbackKey はフォールバック鍵で動作しているかを返す。
func (v *TokenVault) UsesFallbackKey() bool {
	return v.usesFallback
}

// Encrypt は平文を暗号化する。空文字列は空文字列のまま返す。
func (v *TokenVault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt は暗号文を復号する。空文字列は空文字列のまま返す。
// 不正な暗号文は DecryptionError（*model.APIError）で失敗する。
func (v *TokenVault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", model.NewDecryptionError(fmt.Errorf("failed to decode ciphertext: %w", err))
	}

	nonceSize := v.gcm.NonceSize()
	if len(raw) < nonceSize+v.gcm.Overhead() {
		return "", model.NewDecryptionError(errors.New("ciphertext too short"))
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", model.NewDecryptionError(fmt.Errorf("failed to decrypt: %w", err))
	}

	return string(plaintext), nil
}

// SafeDecrypt は復号に失敗した場合に空文字列を返す。
// 表示など失敗を許容できる経路で使用する。
func (v *TokenVault) SafeDecrypt(ciphertext string) string {
	plaintext, err := v.Decrypt(ciphertext)
	if err != nil {
		slog.Warn("token decryption failed; treating as empty", slog.String("error", err.Error()))
		return ""
	}
	return plaintext
}
