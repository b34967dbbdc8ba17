package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockDir_Exclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	unlock, err := lockDir(dir)
	if err != nil {
		t.Fatalf("lockDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}

	acquired := make(chan func() error)
	go func() {
		second, err := lockDir(dir)
		if err != nil {
			t.Errorf("second lockDir: %v", err)
			close(acquired)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case second, ok := <-acquired:
		if ok {
			_ = second()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
}
