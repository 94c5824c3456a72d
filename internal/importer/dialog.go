package importer

import (
	"context"

	"github.com/hitoshi/newsdigest/internal/model"
)

// State はインポート画面の状態を表す。
type State string

const (
	StateEmpty     State = "empty"
	StateCleaned   State = "cleaned"
	StatePreviewed State = "previewed"
	StateImporting State = "importing"
	StateDone      State = "done"
	StateError     State = "error"
)

// ItemImporter は解析済みの記事をダイジェストに登録する依存。*Batch が実装する。
type ItemImporter interface {
	Import(ctx context.Context, digestID string, items []model.ParsedItem) (int, error)
}

// analyzeFunc は入力を解析する関数。
type analyzeFunc func(ctx context.Context, raw string) (*AnalyzeResult, error)

// Dialog はインポート画面1つ分の状態機械。
//
//	empty → cleaned → previewed → importing → done | error
//
// 解析に失敗しても入力はそのまま残る。並行利用は想定しない。
type Dialog struct {
	mode    Mode
	analyze analyzeFunc

	input   string
	state   State
	cleaned bool
	fixes   []string
	result  *AnalyzeResult
	err     error
	created int
}

// NewDialog はJSONまたはテキストモードのDialogを生成する。
func NewDialog(mode Mode) *Dialog {
	return &Dialog{
		mode:  mode,
		state: StateEmpty,
		analyze: func(_ context.Context, raw string) (*AnalyzeResult, error) {
			return Analyze(mode, raw)
		},
	}
}

// NewFeedDialog はフィードURLを入力とするDialogを生成する。
func NewFeedDialog(src *FeedSource) *Dialog {
	return &Dialog{
		mode:    ModeFeed,
		state:   StateEmpty,
		analyze: src.Analyze,
	}
}

// Mode は入力モードを返す。
func (d *Dialog) Mode() Mode { return d.mode }
func (d *Dialog) State() State { return d.state }
func (d *Dialog) Input() string { return d.input }
func (d *Dialog) Fixes() []string { return d.fixes }
func (d *Dialog) Result() *AnalyzeResult { return d.result }
func (d *Dialog) Err() error { return d.err }
func (d *Dialog) Created() int { return d.created }

// SetInput は入力を置き換え、状態を empty に戻す。
func (d *Dialog) SetInput(raw string) {
	d.input = raw
	d.state = StateEmpty
	d.cleaned = false
	d.fixes = nil
	d.result = nil
	d.err = nil
	d.created = 0
}

// Clean は入力にテキストクリーナーを適用する。JSONモードのみ有効。
// パースは行わず、入力を修復後のテキストで置き換える。
func (d *Dialog) Clean() (CleanResult, error) {
	if d.mode != ModeJSON {
		return CleanResult{}, model.NewInvalidStateError(string(d.state), "clean")
	}
	if d.busy() {
		return CleanResult{}, model.NewInvalidStateError(string(d.state), "clean")
	}

	res := Clean(d.input)
	d.input = res.Text
	d.fixes = res.Fixes
	d.cleaned = true
	d.result = nil
	d.err = nil
	d.state = StateCleaned
	return res, nil
}

// Analyze はモードに応じたパイプラインで入力を解析する。
// 成功すれば previewed、失敗すれば error に遷移する。
func (d *Dialog) Analyze(ctx context.Context) (*AnalyzeResult, error) {
	if d.busy() {
		return nil, model.NewInvalidStateError(string(d.state), "analyze")
	}

	res, err := d.analyze(ctx, d.input)
	if err != nil {
		d.result = nil
		d.err = err
		d.state = StateError
		return nil, err
	}

	d.result = res
	d.err = nil
	if len(res.Fixes) > 0 {
		d.fixes = res.Fixes
	}
	d.state = StatePreviewed
	return res, nil
}

// Edit はプレビューまたはエラー表示から解析前の状態に戻る。入力は保持する。
func (d *Dialog) Edit() error {
	if d.state != StatePreviewed && d.state != StateError {
		return model.NewInvalidStateError(string(d.state), "edit")
	}

	d.result = nil
	d.err = nil
	if d.cleaned {
		d.state = StateCleaned
	} else {
		d.state = StateEmpty
	}
	return nil
}

// Import はプレビュー中の記事をダイジェストに登録する。previewed からのみ実行できる。
func (d *Dialog) Import(ctx context.Context, importer ItemImporter, digestID string) (int, error) {
	if d.state != StatePreviewed || d.result == nil {
		return 0, model.NewInvalidStateError(string(d.state), "import")
	}

	d.state = StateImporting
	created, err := importer.Import(ctx, digestID, d.result.Items)
	d.created = created
	if err != nil {
		d.err = err
		d.state = StateError
		return created, err
	}

	d.state = StateDone
	return created, nil
}

func (d *Dialog) busy() bool {
	return d.state == StateImporting || d.state == StateDone
}
