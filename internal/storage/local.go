// Package storage は記事画像の保存と削除を提供する。
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// DefaultMaxSize はアップロードできる画像の最大サイズ（5MB）。
const DefaultMaxSize int64 = 5 << 20

// imageDir はアップロード先のディレクトリ（URL・保存パスの接頭辞）。
const imageDir = "articles"

// allowedImageTypes は受け付ける画像のMIMEタイプと保存時の拡張子。
// SVGはスクリプトを含められるため受け付けない。
var allowedImageTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/bmp":  "bmp",
}

// Object はアップロード済みの画像を表す。
type Object struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// LocalStore はローカルディレクトリに画像を保存する。
// 保存した画像は publicBaseURL 配下（例: https://example.com/uploads/）で配信される。
type LocalStore struct {
	root          string
	publicBaseURL string
	maxSize       int64
	now           func() time.Time
}

// NewLocalStore はLocalStoreを生成する。
func NewLocalStore(root, publicBaseURL string, maxSize int64) *LocalStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &LocalStore{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize:       maxSize,
		now:           time.Now,
	}
}

// Root は保存先ディレクトリを返す。
func (s *LocalStore) Root() string {
	return s.root
}

// Upload は画像を検証して保存する。
// 形式は内容から判定し、クライアントが申告したContent-Typeやファイル名は使わない。
func (s *LocalStore) Upload(ctx context.Context, r io.Reader) (*Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("画像の読み込みに失敗しました: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, model.NewImageTooLargeError(s.maxSize >> 20)
	}
	if len(data) == 0 {
		return nil, model.NewInvalidImageError()
	}

	ext, ok := allowedImageTypes[http.DetectContentType(data)]
	if !ok {
		return nil, model.NewInvalidImageError()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := s.objectName(ext)
	if err != nil {
		return nil, err
	}
	objPath := path.Join(imageDir, name)
	full := filepath.Join(s.root, filepath.FromSlash(objPath))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("画像ファイルの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(full)
		return nil, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}

	slog.Info("画像をアップロードしました",
		slog.String("path", objPath),
		slog.Int("size", len(data)),
	)
	return &Object{URL: s.publicBaseURL + "/" + objPath, Path: objPath}, nil
}

// Delete は保存済みの画像を削除する。存在しない場合は何もしない。
// articles/ 配下以外のパスは拒否する。
func (s *LocalStore) Delete(_ context.Context, objPath string) error {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return err
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("画像の削除に失敗しました: %w", err)
	}
	slog.Info("画像を削除しました", slog.String("path", clean))
	return nil
}

// objectName は "<unixミリ秒>-<乱数>.<拡張子>" 形式のファイル名を返す。
func (s *LocalStore) objectName(ext string) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ファイル名の生成に失敗しました: %w", err)
	}
	return fmt.Sprintf("%d-%s.%s", s.now().UnixMilli(), hex.EncodeToString(b), ext), nil
}

// cleanObjectPath は削除対象のパスを検証して正規化する。
func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.Contains(p, `\`) || strings.HasPrefix(p, "/") {
		return "", model.NewInvalidRequestError("chemin d'image invalide")
	}
	clean := path.Clean(p)
	if clean != p || !strings.HasPrefix(clean, imageDir+"/") || strings.Contains(clean, "..") {
		return "", model.NewInvalidRequestError("chemin d'image invalide")
	}
	return clean, nil
}
