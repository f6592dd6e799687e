package secret

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/lockr/keystore"
)

type scriptedAuth struct {
	hardware bool
	enrolled bool
	pass     bool
	err      error
	calls    atomic.Int64
	last     Prompt
}

func (a *scriptedAuth) HasHardware(context.Context) (bool, error) { return a.hardware, nil }
func (a *scriptedAuth) IsEnrolled(context.Context) (bool, error)  { return a.enrolled, nil }
func (a *scriptedAuth) Authenticate(_ context.Context, p Prompt) (bool, error) {
	a.calls.Add(1)
	a.last = p
	return a.pass, a.err
}

func newTestStore(t *testing.T, auth Authenticator) (*Store, *keystore.Memory) {
	t.Helper()
	mem := keystore.NewMemory()
	s, err := NewStore(mem, auth, Config{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s, mem
}

func TestSaveWithoutEnrollmentThenExistsDoesNotPrompt(t *testing.T) {
	ctx := context.Background()
	auth := &scriptedAuth{hardware: true, enrolled: false}
	s, mem := newTestStore(t, auth)

	if err := s.Save(ctx, "longenough1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	ok, err := s.Exists(ctx)
	if err != nil || !ok {
		t.Fatalf("expected secret to exist, ok=%v err=%v", ok, err)
	}
	if auth.calls.Load() != 0 {
		t.Fatalf("Exists must not challenge, calls=%d", auth.calls.Load())
	}
	if mem.Prompts() != 0 {
		t.Fatalf("Exists must not perform authenticated reads, prompts=%d", mem.Prompts())
	}
}

func TestReadChallengesWhenHardwareEnrolled(t *testing.T) {
	ctx := context.Background()
	auth := &scriptedAuth{hardware: true, enrolled: true, pass: true}
	s, mem := newTestStore(t, auth)
	_ = s.Save(ctx, "longenough1")

	v, ok := s.Read(ctx)
	if !ok || v != "longenough1" {
		t.Fatalf("unexpected read %q %v", v, ok)
	}
	if auth.calls.Load() != 1 {
		t.Fatalf("expected one challenge, got %d", auth.calls.Load())
	}
	if auth.last.Message != "Unlock your vault" || auth.last.CancelLabel != "Enter manually" {
		t.Fatalf("unexpected prompt %+v", auth.last)
	}
	if mem.Prompts() != 1 {
		t.Fatalf("expected authentication-required storage read, prompts=%d", mem.Prompts())
	}
}

func TestReadDeclinedChallengeSkipsStorage(t *testing.T) {
	ctx := context.Background()
	auth := &scriptedAuth{hardware: true, enrolled: true, pass: false}
	s, mem := newTestStore(t, auth)
	_ = s.Save(ctx, "longenough1")

	if v, ok := s.Read(ctx); ok || v != "" {
		t.Fatalf("expected absence after declined challenge, got %q", v)
	}
	if mem.Prompts() != 0 {
		t.Fatalf("declined challenge must not read storage, prompts=%d", mem.Prompts())
	}
}

func TestReadWithoutHardwareUsesStorageGate(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t, NoHardware{})
	_ = s.Save(ctx, "longenough1")

	if v, ok := s.Read(ctx); !ok || v != "longenough1" {
		t.Fatalf("unexpected read %q %v", v, ok)
	}
	if mem.Prompts() != 1 {
		t.Fatalf("expected gated storage read, prompts=%d", mem.Prompts())
	}

	mem.Gate = func(context.Context) bool { return false }
	if _, ok := s.Read(ctx); ok {
		t.Fatal("expected absence when storage gate refuses")
	}
}

func TestReadAbsenceIsUniform(t *testing.T) {
	ctx := context.Background()
	errAuth := &scriptedAuth{hardware: true, enrolled: true, err: errors.New("sensor fault")}
	s, _ := newTestStore(t, errAuth)
	_ = s.Save(ctx, "longenough1")
	if _, ok := s.Read(ctx); ok {
		t.Fatal("expected absence on challenge error")
	}

	empty, _ := newTestStore(t, NoHardware{})
	if _, ok := empty.Read(ctx); ok {
		t.Fatal("expected absence when nothing stored")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)
	_ = s.Save(ctx, "longenough1")

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if ok, _ := s.Exists(ctx); ok {
		t.Fatal("expected secret removed")
	}
}

func TestChallengeDoesNotReadSecret(t *testing.T) {
	ctx := context.Background()
	auth := &scriptedAuth{hardware: true, enrolled: true, pass: true}
	s, mem := newTestStore(t, auth)

	unlock := Prompt{Message: "Unlock Vault", CancelLabel: "Use Master Password"}
	if !s.Challenge(ctx, unlock) {
		t.Fatal("expected challenge to pass")
	}
	if auth.last != unlock {
		t.Fatalf("expected caller prompt, got %+v", auth.last)
	}
	if mem.Prompts() != 0 {
		t.Fatalf("Challenge must not read storage, prompts=%d", mem.Prompts())
	}

	none, _ := newTestStore(t, NoHardware{})
	if none.Challenge(ctx, unlock) {
		t.Fatal("expected challenge to fail without hardware")
	}

	auth.err = errors.New("sensor fault")
	if s.Challenge(ctx, unlock) {
		t.Fatal("expected challenge error to count as failure")
	}
}
