package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "coachpipe.db")

	lock, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(dbPath + ".lock"); err != nil {
		t.Errorf("expected lock file to exist: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(dbPath + ".lock"); !os.IsNotExist(err) {
		t.Error("expected lock file removed after release")
	}

	// Release twice is safe.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireConflict(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "coachpipe.db")

	first, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	_, err = Acquire(dbPath)
	if err == nil {
		t.Fatal("expected second Acquire to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T: %v", err, err)
	}
	if lockErr.LockPath != dbPath+".lock" {
		t.Errorf("unexpected lock path %q", lockErr.LockPath)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "coachpipe.db")

	lock, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	again.Release()
}
