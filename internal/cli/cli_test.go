package cli

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	errs "github.com/taskvault/taskvault/internal/errors"
)

func TestExitCodeNil(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
}

func TestExitCodePlainError(t *testing.T) {
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
}

func TestExitCodeBlockedCutover(t *testing.T) {
	cause := errs.ErrNotFound("project", "p-1")
	err := error(&exitError{code: 2, err: cause})

	if got := ExitCode(err); got != 2 {
		t.Errorf("ExitCode = %d, want 2", got)
	}
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Error("exitError hides the wrapped cause")
	}
}

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := truncate("short", 60); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}

func TestTruncateMultibyteContent(t *testing.T) {
	s := strings.Repeat("héllo wörld ", 10)
	got := truncate(s, 20)

	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if want := string([]rune(s)[:17]) + "..."; got != want {
		t.Errorf("truncate = %q, want %q", got, want)
	}
	if n := utf8.RuneCountInString(got); n != 20 {
		t.Errorf("truncated to %d runes, want 20", n)
	}
}
