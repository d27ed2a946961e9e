package api

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"track.mp3", "track.mp3"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\song.wav`, "song.wav"},
		{"bad\x00name.flac", "badname.flac"},
		{"what?.mp3", "what.mp3"},
		{"..", "unnamed_file"},
		{"", "unnamed_file"},
		{" .hidden. ", "hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", 300) + ".flac"
	got := SanitizeFilename(long)
	if len(got) != 255 || !strings.HasSuffix(got, ".flac") {
		t.Errorf("long name: len=%d suffix ok=%v", len(got), strings.HasSuffix(got, ".flac"))
	}
}

func TestIsBlockedExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"song.mp3", false},
		{"cover.PNG", false},
		{"payload.exe", true},
		{"script.SH", true},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := IsBlockedExtension(tt.name); got != tt.want {
			t.Errorf("IsBlockedExtension(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
