package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hitoshi/newsdigest/internal/config"
	"github.com/hitoshi/newsdigest/internal/database"
	"github.com/hitoshi/newsdigest/internal/importer"
	"github.com/hitoshi/newsdigest/internal/item"
	"github.com/hitoshi/newsdigest/internal/repository"
	"github.com/hitoshi/newsdigest/internal/security"
)

// 取り込み入力の上限（HTTPの取り込みと同じ5MB）
const maxImportInput = 5 << 20

// importOptions は import サブコマンドの引数。
type importOptions struct {
	DigestID string
	Mode     importer.Mode
	Clean    bool
	DryRun   bool
	Source   string // ファイルパス、"-"（標準入力）、またはフィードURL
}

// parseImportArgs は import サブコマンドの引数を解析する。
//
//	newsdigest import -digest <id> [-mode json|text|feed] [-clean] [-dry-run] [file|url]
func parseImportArgs(args []string) (importOptions, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	digestID := fs.String("digest", "", "取り込み先のダイジェストID")
	mode := fs.String("mode", string(importer.ModeJSON), "入力モード（json, text, feed）")
	clean := fs.Bool("clean", false, "解析前にJSONを修復し、修正内容を先に表示する")
	dryRun := fs.Bool("dry-run", false, "プレビューのみ表示して登録しない")

	if err := fs.Parse(args); err != nil {
		return importOptions{}, fmt.Errorf("invalid import arguments: %w", err)
	}

	m, err := importer.ParseMode(*mode)
	if err != nil {
		return importOptions{}, err
	}

	opts := importOptions{
		DigestID: strings.TrimSpace(*digestID),
		Mode:     m,
		Clean:    *clean,
		DryRun:   *dryRun,
		Source:   strings.TrimSpace(fs.Arg(0)),
	}

	if opts.DigestID == "" && !opts.DryRun {
		return importOptions{}, errors.New("-digest is required unless -dry-run is set")
	}
	if opts.Clean && opts.Mode != importer.ModeJSON {
		return importOptions{}, errors.New("-clean is only available in json mode")
	}
	if opts.Mode == importer.ModeFeed && opts.Source == "" {
		return importOptions{}, errors.New("feed mode requires a feed URL")
	}
	if opts.Source == "" {
		opts.Source = "-"
	}

	return opts, nil
}

// runImport はファイル・標準入力・フィードURLから記事を解析し、ダイジェストに登録する。
func runImport(w io.Writer, stdin io.Reader, cfg *config.Config, args []string) error {
	opts, err := parseImportArgs(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dialog *importer.Dialog
		input  string
	)
	if opts.Mode == importer.ModeFeed {
		source := importer.NewFeedSource(
			security.NewSSRFGuard(), security.NewTextSanitizer(),
			slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
		)
		dialog = importer.NewFeedDialog(source)
		input = opts.Source
	} else {
		dialog = importer.NewDialog(opts.Mode)
		input, err = readImportInput(stdin, opts.Source)
		if err != nil {
			return err
		}
	}

	var itemImporter importer.ItemImporter
	if !opts.DryRun {
		db, err := openDB(cfg, database.PoolConfig{MaxOpenConns: 2})
		if err != nil {
			return err
		}
		defer db.Close()

		itemService := item.NewService(repository.NewPostgresItemRepo(db), repository.NewPostgresDigestRepo(db))
		itemImporter = importer.NewBatch(itemService)
	}

	return importWithDialog(ctx, w, dialog, input, opts, itemImporter)
}

// readImportInput は取り込み対象のテキストを読み込む。
func readImportInput(stdin io.Reader, source string) (string, error) {
	var r io.Reader = stdin
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return "", fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportInput+1))
	if err != nil {
		return "", fmt.Errorf("failed to read import input: %w", err)
	}
	if len(data) > maxImportInput {
		return "", fmt.Errorf("import input exceeds %d bytes", maxImportInput)
	}
	return string(data), nil
}

// importWithDialog はインポート画面と同じ手順（修復 → 解析 → プレビュー → 登録）を実行する。
func importWithDialog(
	ctx context.Context,
	w io.Writer,
	d *importer.Dialog,
	input string,
	opts importOptions,
	itemImporter importer.ItemImporter,
) error {
	d.SetInput(input)

	if opts.Clean {
		res, err := d.Clean()
		if err != nil {
			return err
		}
		for _, fix := range res.Fixes {
			fmt.Fprintf(w, "correction : %s\n", fix)
		}
	}

	res, err := d.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	// -clean なしでも解析時のクリーナーが直した箇所は表示する
	for _, fix := range res.Fixes {
		fmt.Fprintf(w, "correction : %s\n", fix)
	}
	writePreview(w, res)

	if opts.DryRun {
		return nil
	}

	created, err := d.Import(ctx, itemImporter, opts.DigestID)
	if err != nil {
		var batchErr *importer.BatchError
		if errors.As(err, &batchErr) {
			fmt.Fprintf(w, "%d article(s) importé(s) avant l'échec de l'élément %d\n", batchErr.Created, batchErr.Index+1)
		}
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintf(w, "%d article(s) importé(s)\n", created)
	slog.Info("import completed",
		slog.String("digest_id", opts.DigestID),
		slog.String("mode", string(opts.Mode)),
		slog.Int("created", created),
	)
	return nil
}

// writePreview は解析結果を1記事1行で出力する。
func writePreview(w io.Writer, res *importer.AnalyzeResult) {
	fmt.Fprintf(w, "%d article(s) détecté(s)\n", len(res.Items))
	for i, it := range res.Items {
		line := fmt.Sprintf("%3d. %s", i+1, it.Title)
		if it.Source != "" {
			line += " [" + it.Source + "]"
		}
		if len(it.Tags) > 0 {
			line += " #" + strings.Join(it.Tags, " #")
		}
		fmt.Fprintln(w, line)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "avertissement : %s\n", warning)
	}
}
