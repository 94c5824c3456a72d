package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdigest/internal/model"
)

const magicLinkSubject = "Ton lien de connexion"

// RequestMagicLink はメールアドレス宛てにワンタイムのログインリンクを送る。
// redirectPathはログイン後の遷移先で、サイト内の絶対パスのみ受け付ける。
func (s *Service) RequestMagicLink(ctx context.Context, email, redirectPath, clientIP string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return model.NewInvalidRequestError("Adresse email invalide.")
	}
	email = normalizeEmail(addr.Address)

	if s.linkLimiter != nil && !s.linkLimiter.Allow(email, clientIP) {
		slog.Warn("magic link rate limited",
			slog.String("client_ip", clientIP),
		)
		return model.NewRateLimitedError()
	}

	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	link := &model.MagicLink{
		ID:           uuid.New().String(),
		Email:        email,
		TokenHash:    hashToken(token),
		RedirectPath: SafeRedirectPath(redirectPath),
		ExpiresAt:    now.Add(s.config.MagicLinkTTL),
		CreatedAt:    now,
	}
	if err := s.linkRepo.Create(ctx, link); err != nil {
		return fmt.Errorf("failed to save magic link: %w", err)
	}

	callback := strings.TrimRight(s.config.BaseURL, "/") + "/auth/magic-link/callback?" +
		url.Values{"token": {token}}.Encode()
	body := fmt.Sprintf(
		"Bonjour,\r\n\r\nClique sur ce lien pour te connecter :\r\n%s\r\n\r\nCe lien expire dans %d minutes et ne peut être utilisé qu'une seule fois.\r\n",
		callback, int(s.config.MagicLinkTTL.Minutes()),
	)
	if err := s.mailer.Send(ctx, email, magicLinkSubject, body); err != nil {
		return fmt.Errorf("failed to send magic link: %w", err)
	}

	slog.Info("magic link sent", slog.String("link_id", link.ID))
	return nil
}

// VerifyMagicLink はログインリンクのトークンを検証してセッションを発行する。
// リンクは一度だけ使える。戻り値の文字列はログイン後の遷移先パス。
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*model.Session, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "", model.NewInvalidLinkError()
	}

	link, err := s.linkRepo.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, "", fmt.Errorf("failed to find magic link: %w", err)
	}
	if link == nil {
		return nil, "", model.NewLinkExpiredError()
	}

	now := s.now()
	if link.UsedAt != nil || !now.Before(link.ExpiresAt) {
		return nil, "", model.NewLinkExpiredError()
	}
	ok, err := s.linkRepo.MarkUsed(ctx, link.ID, now)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mark magic link used: %w", err)
	}
	if !ok {
		return nil, "", model.NewLinkExpiredError()
	}

	userID, err := s.resolveUser(ctx, &OAuthUserInfo{
		ProviderUserID: link.Email,
		Email:          link.Email,
		Name:           nameFromEmail(link.Email),
		Provider:       model.ProviderEmail,
	})
	if err != nil {
		return nil, "", err
	}

	session, err := s.createSession(ctx, userID, model.ProviderEmail)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}
	return session, link.RedirectPath, nil
}

// SafeRedirectPath はオープンリダイレクトにならないサイト内パスだけを返す。それ以外は "/"。
func SafeRedirectPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return "/"
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return p
}

// hashToken はトークンのSHA-256ハッシュを16進文字列で返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
