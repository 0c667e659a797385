package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"reelmill/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "video_main", "ffmpeg", "concat failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"video_main", "ffmpeg", "concat failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestDetailsClassification(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{services.Wrap(services.ErrConflict, "claim", "", "", nil), "conflict"},
		{services.Wrap(services.ErrTimeout, "job", "", "", nil), "timeout"},
		{services.Wrap(services.ErrTransient, "plane", "", "", nil), "transient"},
		{services.Wrap(services.ErrValidation, "snapshot", "", "", nil), "validation"},
		{errors.New("plain"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Details(tc.err).Kind; got != tc.kind {
			t.Fatalf("Details(%v).Kind = %q, want %q", tc.err, got, tc.kind)
		}
	}
	if got := services.Details(nil); got.Kind != "" {
		t.Fatalf("expected empty details for nil, got %+v", got)
	}
}

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := services.WithProjectID(context.Background(), "p1")
	ctx = services.WithLanguage(ctx, "es")
	ctx = services.WithStage(ctx, "")
	if id, ok := services.ProjectIDFromContext(ctx); !ok || id != "p1" {
		t.Fatalf("unexpected project id %q ok=%v", id, ok)
	}
	if lang, ok := services.LanguageFromContext(ctx); !ok || lang != "es" {
		t.Fatalf("unexpected language %q ok=%v", lang, ok)
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be ignored")
	}
}

func TestTruncateReasonKeepsRunesWhole(t *testing.T) {
	reason := strings.Repeat("é", 10)
	got := services.TruncateReason(reason, 5)
	if got != "éé..." {
		t.Fatalf("TruncateReason = %q, want %q", got, "éé...")
	}
	if !utf8.ValidString(got) {
		t.Fatalf("TruncateReason produced invalid UTF-8: %q", got)
	}
	if short := services.TruncateReason("ok", 5); short != "ok" {
		t.Fatalf("short reason changed: %q", short)
	}
}
