package security

import "testing"

// TestStripHTML はタグの除去・エンティティ復元・空白の正規化を検証する。
func TestStripHTML(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
		{
			name:  "タグのないテキストはそのまま",
			input: "Une simple phrase.",
			want:  "Une simple phrase.",
		},
		{
			name:  "段落タグが除去される",
			input: "<p>Premier paragraphe.</p><p>Second paragraphe.</p>",
			want:  "Premier paragraphe. Second paragraphe.",
		},
		{
			name:  "リンクはテキストのみ残る",
			input: `Lire <a href="https://example.com">l'article</a> complet`,
			want:  "Lire l'article complet",
		},
		{
			name:  "scriptは中身ごと除去される",
			input: "Avant<script>alert('xss')</script>Après",
			want:  "Avant Après",
		},
		{
			name:  "エンティティが復元される",
			input: "Tom &amp; Jerry &eacute;t&eacute;",
			want:  "Tom & Jerry été",
		},
		{
			name:  "改行と連続空白がまとめられる",
			input: "  ligne 1\n\n   ligne 2\t ",
			want:  "ligne 1 ligne 2",
		},
		{
			name:  "画像タグは除去される",
			input: `<img src="https://example.com/a.png" onerror="alert(1)">Légende`,
			want:  "Légende",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.StripHTML(tt.input)
			if got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestStripHTML_Idempotent は同じ入力を2回処理しても結果が変わらないことを検証する。
func TestStripHTML_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := "<div><b>Titre</b> &mdash; texte</div>"
	first := sanitizer.StripHTML(input)
	second := sanitizer.StripHTML(first)
	if first != second {
		t.Errorf("StripHTML is not idempotent: %q then %q", first, second)
	}
}
