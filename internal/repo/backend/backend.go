// Package backend picks a repo.Store adapter from a DATABASE_URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/repo/memory"
	pg "github.com/hamed0406/sitemonitor/internal/repo/postgres"
	"github.com/hamed0406/sitemonitor/internal/repo/sqlite"
)

// Open understands:
//
//	memory://
//	sqlite://path/to/file.db  (sqlite:///abs/path.db, sqlite://:memory:)
//	postgres://... or postgresql://...
func Open(ctx context.Context, databaseURL string, log *zap.Logger) (repo.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return nil, fmt.Errorf("database url %q: missing scheme", databaseURL)
	}
	switch strings.ToLower(scheme) {
	case "memory":
		log.Info("store_selected", zap.String("backend", "memory"))
		return memory.New(), nil
	case "sqlite", "sqlite3":
		if rest == "" {
			return nil, fmt.Errorf("database url %q: missing sqlite path", databaseURL)
		}
		log.Info("store_selected", zap.String("backend", "sqlite"), zap.String("path", rest))
		return sqlite.Open(ctx, rest, log)
	case "postgres", "postgresql":
		log.Info("store_selected", zap.String("backend", "postgres"))
		return pg.New(ctx, databaseURL, log)
	default:
		return nil, fmt.Errorf("database url %q: unsupported scheme %q", databaseURL, scheme)
	}
}
