package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はカレンダーイベントのタイトルを無害化し、説明文を外部カレンダー向けのHTMLに変換する。
// 説明文は入力どおりに保存し、HTMLとして表示されるGoogleカレンダーへ送る時点でのみ許可リストを適用する。
type TextSanitizer struct {
	title       *bluemonday.Policy
	description *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// タイトル: タグをすべて除去したプレーンテキスト
// 説明文: p, br, ul, ol, li, strong, em, b, i, u と https のリンクのみ許可
func NewTextSanitizer() *TextSanitizer {
	d := bluemonday.NewPolicy()
	d.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i", "u")
	d.AllowAttrs("href").OnElements("a")
	d.AllowRelativeURLs(false)
	d.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	d.RequireNoReferrerOnLinks(true)
	d.AddTargetBlankToFullyQualifiedLinks(true)

	return &TextSanitizer{
		title:       bluemonday.StrictPolicy(),
		description: d,
	}
}

// SanitizeTitle はタグを除去し、前後の空白を取り除く。
// bluemondayがエスケープした文字は元に戻す（タイトルはテキストとして扱うため）。
func (s *TextSanitizer) SanitizeTitle(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.title.Sanitize(raw)))
}

// DescriptionHTML は保存済みの説明文を許可されたタグのみのHTMLに変換する。
// 記号はHTMLエスケープされるため、結果を保存してはならない。空文字列は空文字列のまま返す。
func (s *TextSanitizer) DescriptionHTML(raw string) string {
	if raw == "" {
		return ""
	}
	return s.description.Sanitize(raw)
}
