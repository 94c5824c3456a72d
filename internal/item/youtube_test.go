package item

import "testing"

// TestYouTubeID は各種URL形式からの動画ID抽出を検証する。
func TestYouTubeID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watchと他のパラメータ", "https://youtube.com/watch?t=42&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"短縮URL", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts", "https://m.youtube.com/shorts/dQw4w9WgXcQ/", "dQw4w9WgXcQ"},
		{"IDのみ", " dQw4w9WgXcQ ", "dQw4w9WgXcQ"},
		{"YouTube以外", "https://vimeo.com/123456", ""},
		{"IDが短い", "https://youtu.be/abc", ""},
		{"空", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := YouTubeID(tt.input); got != tt.want {
				t.Errorf("YouTubeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestYouTubeURLs はサムネイルと埋め込みURLの生成を検証する。
func TestYouTubeURLs(t *testing.T) {
	url := "https://youtu.be/dQw4w9WgXcQ"
	if got := YouTubeThumbnail(url); got != "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Errorf("YouTubeThumbnail() = %q", got)
	}
	if got := YouTubeEmbedURL(url); got != "https://www.youtube.com/embed/dQw4w9WgXcQ" {
		t.Errorf("YouTubeEmbedURL() = %q", got)
	}
	if YouTubeThumbnail("https://site.fr/video.mp4") != "" || YouTubeEmbedURL("") != "" {
		t.Error("non-YouTube URLs should produce empty strings")
	}
}
