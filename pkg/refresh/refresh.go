// Package refresh runs one end-to-end background refresh cycle: fetch every
// page of a project's issues with bounded parallelism, then commit the
// result to the store atomically.
//
// Commit is all-or-nothing. When any page fails the cycle aborts with an
// error and the store entry is left byte-for-byte untouched; the next
// foreground query will trigger a retry. A successful commit overwrites the
// entry wholesale and resets its timestamp.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/logging"
	"github.com/issuedeck/issuedeck/pkg/pagination"
	"github.com/issuedeck/issuedeck/pkg/store"
)

// DefaultPageSize is the page size used when the caller does not override it.
const DefaultPageSize = 50

// PageSource fetches one page of a project's issues.
type PageSource interface {
	SearchPage(ctx context.Context, projectKey string, startAt, maxResults int) ([]gateway.Issue, error)
}

// Run refreshes the cache entry for projectKey. total is the point-in-time
// issue count reported by the tracker before this cycle was spawned; a
// differing fetched count is accepted.
func Run(ctx context.Context, st *store.Store, source PageSource, cfg pagination.Config, projectKey string, total, pageSize int) error {
	logger := logging.NewLogger("refresh")
	start := time.Now()

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	issues, err := pagination.FetchAll(ctx, cfg, total, pageSize,
		func(ctx context.Context, offset, limit int) ([]gateway.Issue, error) {
			return source.SearchPage(ctx, projectKey, offset, limit)
		})
	if err != nil {
		logger.Error().
			Err(err).
			Str("key", projectKey).
			Msg("Refresh cycle aborted, cache untouched")
		return fmt.Errorf("refresh %s: %w", projectKey, err)
	}

	data, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("marshal records for %s: %w", projectKey, err)
	}
	if err := st.Set(ctx, projectKey, data); err != nil {
		return fmt.Errorf("commit %s: %w", projectKey, err)
	}

	logger.Info().
		Str("key", projectKey).
		Int("records", len(issues)).
		Int("reported_total", total).
		Dur("duration", time.Since(start)).
		Msg("Refresh committed")

	return nil
}
