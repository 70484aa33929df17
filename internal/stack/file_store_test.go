package stack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.json")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0o640); err != nil {
		t.Fatalf("write stack: %v", err)
	}
	store := NewFileStore(path, zerolog.Nop())

	def, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def.Members[0].VersionLocator = "cat.v9"

	if err := store.Save(context.Background(), def); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Members[0].VersionLocator != "cat.v9" {
		t.Fatalf("expected updated locator, got %q", reloaded.Members[0].VersionLocator)
	}
	if reloaded.Members[1].VersionLocator != "cat.v2" {
		t.Fatalf("expected untouched locator, got %q", reloaded.Members[1].VersionLocator)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected mode 0640 to be kept, got %v", info.Mode().Perm())
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".stack-*.json"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "stack.json"), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
