package env

import (
	"testing"
	"time"
)

func TestStringFallsBackOnBlank(t *testing.T) {
	t.Setenv("LOCKR_TEST_STRING", "   ")
	if got := String("LOCKR_TEST_STRING", "def"); got != "def" {
		t.Fatalf("expected default, got %q", got)
	}
	t.Setenv("LOCKR_TEST_STRING", " value ")
	if got := String("LOCKR_TEST_STRING", "def"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestTypedReaders(t *testing.T) {
	t.Setenv("LOCKR_TEST_BOOL", "true")
	t.Setenv("LOCKR_TEST_INT", "-4")
	t.Setenv("LOCKR_TEST_DUR", "3s")

	if !Bool("LOCKR_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if got := Int("LOCKR_TEST_INT", 9); got != 9 {
		t.Fatalf("negative int should fall back, got %d", got)
	}
	if got := Duration("LOCKR_TEST_DUR", time.Second); got != 3*time.Second {
		t.Fatalf("unexpected duration %s", got)
	}
	if got := Duration("LOCKR_TEST_MISSING", time.Second); got != time.Second {
		t.Fatalf("expected default duration, got %s", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("LOCKR_TEST_LIST", "a, ,b,")
	got := List("LOCKR_TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}
