package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/repo/repotest"
)

// resetSchema empties the tables so every subtest starts from an empty store.
func resetSchema(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `TRUNCATE checks, sites RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	repotest.Run(t, func(t *testing.T) repo.Store {
		s, err := New(context.Background(), dsn, zap.NewNop())
		if err != nil {
			t.Fatalf("New store: %v", err)
		}
		resetSchema(t, s)
		return s
	})
}
