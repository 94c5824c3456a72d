package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxOAuthResponseSize はIdPレスポンスの読み込み上限（1MB）。
const maxOAuthResponseSize = 1 << 20

// defaultOAuthHTTPClient はIdPとの通信に使う既定のHTTPクライアント。
var defaultOAuthHTTPClient = &http.Client{Timeout: 10 * time.Second}

// oauthTokenResponse はトークンエンドポイントのレスポンス。
// GoogleとGitHubで共通のフィールドのみを扱う。
type oauthTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchangeToken は認可コードをアクセストークンに交換する。
func exchangeToken(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tokenResp oauthTokenResponse
	if err := doJSON(client, req, &tokenResp); err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token exchange rejected: %s", tokenResp.Error)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// getJSON はBearerトークン付きでGETし、レスポンスをdstにデコードする。
func getJSON(ctx context.Context, client *http.Client, endpoint, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return doJSON(client, req, dst)
}

func doJSON(client *http.Client, req *http.Request, dst any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOAuthResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
