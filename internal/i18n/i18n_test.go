package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return NewContext(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "MissingAudio")
	if got != "No audio data" {
		t.Errorf("T(MissingAudio) = %q, want 'No audio data'", got)
	}

	got = T(ctx, "SessionExpired")
	if got != "Session expired, please start over" {
		t.Errorf("T(SessionExpired) = %q", got)
	}
}

func TestTranslateIndonesian(t *testing.T) {
	ctx := initLang(t, "id")

	got := T(ctx, "MissingAudio")
	if got != "Tidak ada data audio" {
		t.Errorf("T(MissingAudio) = %q, want 'Tidak ada data audio'", got)
	}
}

func TestTemplateData(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "NextQuestion", map[string]any{"Num": 3, "Total": 10})
	if got != "Question 3 of 10" {
		t.Errorf("Td(NextQuestion) = %q, want 'Question 3 of 10'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the ID itself", got)
	}
}
