package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Mailer はログインリンクのメール送信インターフェース。
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer はSMTPサーバー経由でメールを送信する。
type SMTPMailer struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPMailer{config: config, send: smtp.SendMail}
}

// Send はテキストメールを送信する。
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid mail header value")
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.config.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	if err := m.send(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// LogMailer はメールを送信せずログに出力する。SMTP未設定の開発環境向け。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send はメール内容をInfoレベルで記録する。
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail not sent (SMTP not configured)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
)
