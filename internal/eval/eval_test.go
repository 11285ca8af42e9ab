package eval

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildScoringPrompt(t *testing.T) {
	prompt := buildScoringPrompt(
		"She sells fresh apples.",
		"she sell fresh apple",
		"id",
	)

	if !strings.Contains(prompt, "She sells fresh apples.") {
		t.Error("prompt should contain the target sentence")
	}
	if !strings.Contains(prompt, "she sell fresh apple") {
		t.Error("prompt should contain the transcript")
	}
	if !strings.Contains(prompt, "Indonesian") {
		t.Error("prompt should name the feedback language")
	}
	if !strings.Contains(prompt, `"fluency"`) || !strings.Contains(prompt, `"pronunciation"`) {
		t.Error("prompt should describe the expected JSON shape")
	}
	if !strings.Contains(prompt, "ONLY with a JSON object") {
		t.Error("prompt should demand a structured-only response")
	}
}

func TestLanguageName(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"id", "Indonesian"},
		{"ID", "Indonesian"},
		{"en", "English"},
		{"ru", "Russian"},
		{"pt-BR", "pt-BR"},
	}
	for _, tt := range tests {
		if got := languageName(tt.tag); got != tt.want {
			t.Errorf("languageName(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestDegraded(t *testing.T) {
	ev := degraded(errors.New("connection refused"))

	if ev.Fluency != 0 || ev.Pronunciation != 0 || ev.Score != 0 {
		t.Errorf("degraded result must carry zero scores, got %+v", ev)
	}
	if ev.Score != CompositeScore(ev.Fluency, ev.Pronunciation) {
		t.Error("degraded score must still satisfy the composite invariant")
	}
	if !strings.HasPrefix(ev.Feedback, "Error: ") {
		t.Errorf("degraded feedback should carry the cause, got %q", ev.Feedback)
	}
	if !strings.Contains(ev.Feedback, "connection refused") {
		t.Errorf("degraded feedback should name the cause, got %q", ev.Feedback)
	}
}
