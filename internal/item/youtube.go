package item

import (
	"net/url"
	"regexp"
	"strings"
)

// youtubeIDPattern は動画IDのみが入力された場合の形式。
var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeID はYouTubeのURL（watch、youtu.be、embed、shorts）または動画IDから動画IDを取り出す。
// 認識できない場合は空文字を返す。
func YouTubeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if youtubeIDPattern.MatchString(raw) {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		}
	}

	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// YouTubeThumbnail は動画のサムネイル画像URLを返す。YouTube動画でない場合は空文字。
func YouTubeThumbnail(videoURL string) string {
	id := YouTubeID(videoURL)
	if id == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
}

// YouTubeEmbedURL は埋め込みプレーヤーのURLを返す。YouTube動画でない場合は空文字。
func YouTubeEmbedURL(videoURL string) string {
	id := YouTubeID(videoURL)
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/embed/" + id
}
