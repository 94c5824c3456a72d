// Package logger はslogによるJSON構造化ログの設定を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const serviceName = "newsdigest"

const redacted = "[REDACTED]"

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。空や不明な値はInfo。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup は指定レベル以上を出力するJSONロガーを生成する。
// すべてのレコードに service 属性が付き、パスワードやシークレットを含むキーの値は伏せられる。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler).With(slog.String("service", serviceName))
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if strings.Contains(key, "password") || strings.Contains(key, "secret") {
		return slog.String(a.Key, redacted)
	}
	return a
}

// SetupDefault はグローバルロガーを設定する。wがnilならos.Stdoutに出力する。
// 設定の読み込みより前に呼ばれるため、LOG_LEVELは環境変数から直接読む。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, ParseLevel(os.Getenv("LOG_LEVEL"))))
}
