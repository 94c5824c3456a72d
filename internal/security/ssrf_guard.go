// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrResponseTooLarge はレスポンス本文が上限を超えたときに読み取り側へ返るエラー。
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// URLGuard は外部URL取得（リンクプレビュー、フィード取り込み、補完ジョブ）の
// SSRF対策のインターフェース。
type URLGuard interface {
	// NewSafeClient はSSRF防止機能とレスポンスサイズ上限付きのHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はリクエスト前にURLを静的に検証する。
	ValidateURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

var allowedPorts = []int{80, 443}

// blockedPrefixes は取得を拒否するアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIP 169.254.169.254 を含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// blockedHostSuffixes は名前解決前に拒否する内部向けドメイン。
var blockedHostSuffixes = []string{".localhost", ".local", ".internal"}

// Guard はURLGuardの実装。
type Guard struct{}

var _ URLGuard = (*Guard)(nil)

// NewSSRFGuard は新しいGuardを生成する。
func NewSSRFGuard() *Guard {
	return &Guard{}
}

// NewSafeClient はsafeurlで構築したクライアントを返す。
// 名前解決後のIPアドレスはDialerのControlフックで検証されるため、DNS再バインディングも防げる。
// maxResponseSizeが正の場合、本文は上限+1バイト目でErrResponseTooLargeになる。
func (g *Guard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()

	client := safeurl.Client(config).Client
	if maxResponseSize > 0 && client.Transport != nil {
		client.Transport = &limitedTransport{base: client.Transport, max: maxResponseSize}
	}
	return client
}

// ValidateURL はスキーム・認証情報・ポート・ホストを検証する。
// IPリテラルは禁止範囲と照合し、ホスト名は内部向けの名前のみ拒否する。
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !slices.Contains(allowedSchemes, strings.ToLower(parsed.Scheme)) {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return errors.New("credentials in URL are not allowed")
	}

	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || !slices.Contains(allowedPorts, port) {
			return fmt.Errorf("disallowed port: %s", p)
		}
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// isBlockedAddr はアドレスが禁止範囲に含まれるかを返す。IPv4射影アドレスはIPv4として扱う。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() {
		return true
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	if host == "localhost" {
		return true
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// limitedTransport はレスポンス本文の読み取り量を制限する。
type limitedTransport struct {
	base http.RoundTripper
	max  int64
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > t.max {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content-length %d", ErrResponseTooLarge, resp.ContentLength)
	}
	resp.Body = &limitedBody{rc: resp.Body, remaining: t.max}
	return resp, nil
}

type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrResponseTooLarge
	}
	// 上限を超えたかを判定するため1バイト多く読む
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n - int(-b.remaining), ErrResponseTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
