package resolve

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MrWong99/dmbot/internal/songs"
)

// watchPrefix is the canonical YouTube watch URL without the video ID.
const watchPrefix = "https://www.youtube.com/watch?v="

// IsDirectURL reports whether input should be played as-is rather than
// looked up in the registry. Only http and https URLs qualify; the scheme
// is matched case-insensitively.
func IsDirectURL(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// VideoID derives the registry key for a URL.
//
// YouTube watch, shorts, embed, live and youtu.be links yield the bare video
// ID. URLs of other sites are stored whole, query included, and remain
// playable through [CanonicalURL]. Anything else has the watch prefix
// stripped and is cut at the first '&'. An empty result is [songs.ErrEmptyID].
func VideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if id := youtubeID(raw); id != "" {
		return id, nil
	}
	if IsDirectURL(raw) && !strings.HasPrefix(raw, watchPrefix) {
		return raw, nil
	}

	id := strings.TrimPrefix(raw, watchPrefix)
	id, _, _ = strings.Cut(id, "&")
	if id == "" {
		return "", fmt.Errorf("resolve: no video id in %q: %w", raw, songs.ErrEmptyID)
	}
	return id, nil
}

// youtubeID returns the video ID of a recognised YouTube URL, or "".
func youtubeID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch host {
	case "youtu.be":
		id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return id
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id, _, _ := strings.Cut(rest, "/")
				return id
			}
		}
	}
	return ""
}

// CanonicalURL returns the playable URL for a registry key. Keys that are
// already URLs are returned unchanged.
func CanonicalURL(videoID string) string {
	if IsDirectURL(videoID) {
		return videoID
	}
	return watchPrefix + videoID
}
