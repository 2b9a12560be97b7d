// Package youtube normalizes the video references the model hands back:
// the generation backend is asked for a URL, but in practice it returns
// anything from a bare video ID to a share link buried in prose.
package youtube

import (
	"fmt"
	"regexp"
)

var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|shorts/|.*[?&]v=)|youtu\.be/)([A-Za-z0-9_-]{11})`)

var bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID finds the 11-character YouTube video ID in s, which may be
// a watch/share/embed URL, a bare ID, or free text containing one of those.
func ExtractVideoID(s string) (string, bool) {
	if bareIDPattern.MatchString(s) {
		return s, true
	}
	if m := videoIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// Canonical returns the canonical watch URL for whatever video reference s
// contains. ok is false when s holds no recognizable video.
func Canonical(s string) (string, bool) {
	id, ok := ExtractVideoID(s)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id), true
}

// EmbedURL converts a video reference into the embeddable player URL.
func EmbedURL(s string) (string, bool) {
	id, ok := ExtractVideoID(s)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("https://www.youtube.com/embed/%s", id), true
}
