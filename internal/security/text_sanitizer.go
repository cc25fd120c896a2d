package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプロフィールの名前やメールアドレスなどのプレーンテキストから
// HTMLタグを取り除く。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// タグを含まない入力は利用者が入力した文字参照も含めてそのまま保持する。
// タグを除去した場合はbluemondayがエスケープした文字参照を元の文字に戻す（テンプレート出力時に再度エスケープされる）。
func (s *TextSanitizer) Sanitize(raw string) string {
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(raw)
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
