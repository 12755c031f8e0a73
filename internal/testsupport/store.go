// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"music-enricher/internal/logging"
	"music-enricher/internal/shared"
	"music-enricher/internal/store"
)

// NewStore opens a store in a temporary directory and registers cleanup.
func NewStore(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewEntity creates a local entity for tests.
func NewEntity(t testing.TB, s *store.Store, e shared.LocalEntity) *shared.LocalEntity {
	t.Helper()

	created, err := s.CreateEntity(context.Background(), e)
	if err != nil {
		t.Fatalf("store.CreateEntity: %v", err)
	}
	return created
}

// Logger returns a logger that discards output, or writes debug output to
// the test log when verbose.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	if !testing.Verbose() {
		return logging.NewNop()
	}
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: testWriter{t}, NoColor: true})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return logger
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
