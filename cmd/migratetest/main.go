package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/sqlite"
	"github.com/myrjola/directorscut/internal/testhelpers"
)

// migratetest opens a copy of the production database so that the schema migration runs against real data, then
// checks that the data survived.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("DIRECTORSCUT_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "DIRECTORSCUT_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Count the stored conversations and archived scenarios as a simple smoke test.
	var counts struct {
		Entries   int `db:"entries"`
		Scenarios int `db:"scenarios"`
	}
	if err = db.ReadOnly.GetContext(ctx, &counts,
		`SELECT (SELECT COUNT(*) FROM kv) AS entries, (SELECT COUNT(*) FROM scenarios) AS scenarios`); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error counting rows", errors.SlogError(err))
		os.Exit(1)
	}
	if counts.Entries == 0 && counts.Scenarios == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no data found, something is likely wrong")
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "row counts",
		slog.Int("entries", counts.Entries), slog.Int("scenarios", counts.Scenarios))

	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
