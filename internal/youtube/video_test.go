package youtube

import "testing"

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"share url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"share url with params", "https://youtu.be/dQw4w9WgXcQ?si=abc123", "dQw4w9WgXcQ", true},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"shorts url", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch url with extra params", "https://www.youtube.com/watch?t=42&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"url inside prose", "I recommend https://www.youtube.com/watch?v=dQw4w9WgXcQ for this chapter.", "dQw4w9WgXcQ", true},
		{"no video", "there is no link here", "", false},
		{"channel url", "https://www.youtube.com/@somechannel", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.input)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("ExtractVideoID(%q) = %q, %v; want %q, %v", tt.input, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	got, ok := Canonical("https://youtu.be/dQw4w9WgXcQ")
	if !ok || got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("Canonical() = %q, %v", got, ok)
	}
	if _, ok := Canonical("no link"); ok {
		t.Error("Canonical() should fail without a video reference")
	}
}

func TestEmbedURL(t *testing.T) {
	got, ok := EmbedURL("dQw4w9WgXcQ")
	if !ok || got != "https://www.youtube.com/embed/dQw4w9WgXcQ" {
		t.Errorf("EmbedURL() = %q, %v", got, ok)
	}
}
