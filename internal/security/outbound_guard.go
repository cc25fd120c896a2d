// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部呼び出しで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// internalNetworks はループバック・プライベートとみなすネットワーク範囲。
// 開発環境のプロフィールAPIやAuthエミュレーターはこの範囲で動作する。
var internalNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in internalNetworks: %s: %v", cidr, err))
		}
		internalNetworks = append(internalNetworks, *network)
	}
}

// OutboundGuard は設定済みの外部エンドポイント（プロフィールAPI、IDプロバイダー）向けの
// HTTPクライアントを生成する。
type OutboundGuard struct{}

// NewOutboundGuard はOutboundGuardを生成する。
func NewOutboundGuard() *OutboundGuard {
	return &OutboundGuard{}
}

// NewClient は宛先URLに応じたHTTPクライアントを生成する。
// 公開ホスト宛てにはsafeurlのクライアントを返し、接続時に解決後のIPアドレスを検証する。
// ループバックやプライベートネットワーク宛て（ローカル開発のAPI、エミュレーター）は
// 運用者が明示的に設定した宛先のため、タイムアウトのみ設定した通常のクライアントを返す。
func (g *OutboundGuard) NewClient(target string, timeout time.Duration) (*http.Client, error) {
	parsed, err := g.ValidateURL(target)
	if err != nil {
		return nil, err
	}

	if IsInternalHost(parsed.Hostname()) {
		return &http.Client{Timeout: timeout}, nil
	}

	ports := []int{80, 443}
	if p := parsed.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n != 80 && n != 443 {
			ports = append(ports, n)
		}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client, nil
}

// ValidateURL は宛先URLのスキームとホストを静的に検証する。
func (g *OutboundGuard) ValidateURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return nil, fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("empty host in URL: %s", rawURL)
	}

	return parsed, nil
}

// IsInternalHost はホストがlocalhost、ループバック、プライベートアドレスのいずれかであればtrueを返す。
func IsInternalHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range internalNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
