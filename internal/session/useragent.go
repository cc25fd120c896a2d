package session

import (
	"fmt"

	"github.com/mssola/useragent"
)

// DescribeUserAgent はUser-Agentからログや画面表示用の短いラベルを生成する。
func DescribeUserAgent(raw string) string {
	if raw == "" {
		return "unknown client"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, _ := ua.Browser()
	if name == "" {
		name = "unknown browser"
	}
	label := name
	if os := ua.OS(); os != "" {
		label = fmt.Sprintf("%s on %s", name, os)
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
