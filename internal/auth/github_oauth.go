package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/newsdigest/internal/model"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL   = "https://api.github.com"
	githubUserPath        = "/user"
	githubUserEmailsPath  = "/user/emails"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string

	HTTPClient *http.Client
}

// GitHubOAuthProvider はGitHub OAuth Appによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.APIURL == "" {
		config.APIURL = defaultGitHubAPIURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = defaultOAuthHTTPClient
	}
	return &GitHubOAuthProvider{config: config}
}

// Name はプロバイダー名を返す。
func (p *GitHubOAuthProvider) Name() string { return model.ProviderGitHub }

// GetLoginURL はGitHubの認可URLを生成する。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
		"allow_signup": {"true"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// メールアドレスは /user/emails の検証済みプライマリアドレスを使う。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	accessToken, err := exchangeToken(ctx, p.config.HTTPClient, p.config.TokenURL, url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	})
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := getJSON(ctx, p.config.HTTPClient, p.config.APIURL+githubUserPath, accessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}

	var emails []githubEmail
	if err := getJSON(ctx, p.config.HTTPClient, p.config.APIURL+githubUserEmailsPath, accessToken, &emails); err != nil {
		return nil, fmt.Errorf("failed to fetch user emails: %w", err)
	}

	email := ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			email = normalizeEmail(e.Email)
			break
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return &OAuthUserInfo{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		Name:           name,
		Provider:       model.ProviderGitHub,
	}, nil
}

var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
