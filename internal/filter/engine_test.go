package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompileAndMatch(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		fallback string
		title    string
		want     bool
		wantErr  bool
	}{
		{
			name:    "case insensitive literal",
			pattern: "1080p",
			title:   "[BDMV] Violet Evergarden 1080P",
			want:    true,
		},
		{
			name:    "literal does not match other resolution",
			pattern: "1080p",
			title:   "[BDMV] K-On! 720p",
			want:    false,
		},
		{
			name:    "alternation",
			pattern: "evergarden|haruhi",
			title:   "[BDMV] Haruhi Box",
			want:    true,
		},
		{
			name:     "empty pattern uses fallback",
			pattern:  "",
			fallback: `^\[BDMV\]`,
			title:    "[bdmv] Anything",
			want:     true,
		},
		{
			name:     "fallback rejects other domain",
			pattern:  "  ",
			fallback: `^\[BDMV\]`,
			title:    "[DVD] Anything",
			want:     false,
		},
		{
			name:  "no pattern and no fallback matches all",
			title: "whatever",
			want:  true,
		},
		{
			name:  "no pattern matches empty title",
			title: "",
			want:  true,
		},
		{
			name:    "invalid pattern matches nothing",
			pattern: "([unclosed",
			title:   "([unclosed",
			want:    false,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.pattern, tt.fallback)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
			if diff := cmp.Diff(tt.want, m.Match(tt.title)); diff != "" {
				t.Errorf("Match(%q) mismatch (-want +got):\n%s", tt.title, diff)
			}
		})
	}
}

func TestZeroMatcher(t *testing.T) {
	var m Matcher
	if m.Match("anything") {
		t.Error("zero Matcher should match nothing")
	}
	if diff := cmp.Diff("", m.String()); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{pattern: "1080p", wantErr: false},
		{pattern: `(?:BD|DVD)\s*ISO`, wantErr: false},
		{pattern: "[invalid", wantErr: true},
		{pattern: "(unclosed", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("ValidateRegex(%q) error mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}
