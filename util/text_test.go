package util

import (
	"math"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Send the Q3 report!  ", "send the q3 report"},
		{"follow-up: email Bob.", "follow up email bob"},
		{"", ""},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "send the report", "send the report", 1.0},
		{"disjoint", "send report", "book flights", 0.0},
		{"both empty", "", "", 1.0},
		{"one empty", "send report", "", 0.0},
		{"case and punctuation ignored", "Send the report!", "send the report", 1.0},
		{"partial overlap", "send the quarterly report", "send the report", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaccardSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("JaccardSimilarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestJaccardSymmetric(t *testing.T) {
	a, b := "review budget with finance team", "review the budget"
	if JaccardSimilarity(a, b) != JaccardSimilarity(b, a) {
		t.Error("similarity should be symmetric")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 5); got != "hello…" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("hi", 5); got != "hi" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("hi", 0); got != "" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "fallback", "other"); got != "fallback" {
		t.Errorf("Coalesce = %q", got)
	}
	if got := Coalesce(0, 0); got != 0 {
		t.Errorf("Coalesce = %d", got)
	}
}
