// Package query answers "what should the launcher show right now" without
// ever blocking on the network.
//
// The foreground answer reads only local store state and, when the cached
// data is not fresh, fires a detached background refresh through the job
// supervisor. The worst outcome is stale or empty data with a refresh
// already in flight.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/job"
	"github.com/issuedeck/issuedeck/pkg/logging"
	"github.com/issuedeck/issuedeck/pkg/store"
)

// Status describes how trustworthy the returned records are.
type Status string

const (
	// StatusMissing means no cached data exists yet; a refresh was triggered.
	StatusMissing Status = "missing"

	// StatusStale means the data is old and a new refresh was just triggered.
	StatusStale Status = "stale"

	// StatusUpdating means the data is old but a refresh is already running.
	StatusUpdating Status = "updating"

	// StatusFresh means the data is within the max age.
	StatusFresh Status = "fresh"
)

// Result is a foreground answer: the best available records plus a status
// flag the presentation layer can surface.
type Result struct {
	Issues []gateway.Issue `json:"issues"`
	Status Status          `json:"status"`
}

// ProjectResult is the foreground answer for the cached project list.
type ProjectResult struct {
	Projects []gateway.Project `json:"projects"`
	Status   Status            `json:"status"`
}

// Foreground orchestrates store reads, freshness classification and
// best-effort background refresh.
type Foreground struct {
	store  *store.Store
	jobs   *job.Supervisor
	maxAge time.Duration
	logger zerolog.Logger
}

// New creates a foreground query handle. maxAge is the freshness threshold
// for cached entries.
func New(st *store.Store, jobs *job.Supervisor, maxAge time.Duration) *Foreground {
	return &Foreground{
		store:  st,
		jobs:   jobs,
		maxAge: maxAge,
		logger: logging.NewLogger("query"),
	}
}

// Answer returns the best available issues for key immediately. It reads
// only local state; when the entry is missing or stale it ensures a
// background refresh is running via spawn, but never waits for it.
func (f *Foreground) Answer(ctx context.Context, key string, spawn job.SpawnFunc) (Result, error) {
	issues, status, err := answer[gateway.Issue](f, ctx, key, spawn)
	if err != nil {
		return Result{}, err
	}
	return Result{Issues: issues, Status: status}, nil
}

// Projects answers for the cached project list stored under key, using the
// same freshness and refresh machinery as issue entries.
func (f *Foreground) Projects(ctx context.Context, key string, spawn job.SpawnFunc) (ProjectResult, error) {
	projects, status, err := answer[gateway.Project](f, ctx, key, spawn)
	if err != nil {
		return ProjectResult{}, err
	}
	return ProjectResult{Projects: projects, Status: status}, nil
}

func answer[T any](f *Foreground, ctx context.Context, key string, spawn job.SpawnFunc) ([]T, Status, error) {
	entry, err := f.store.Get(ctx, key)
	if err != nil && !errors.Is(err, store.ErrMiss) {
		return nil, "", err
	}

	records, decodeOK := decode[T](entry)
	if entry != nil && !decodeOK {
		// Undecodable payload classifies as missing, same as a corrupt entry.
		f.logger.Warn().Str("key", key).Msg("Cached records undecodable, treating as missing")
		entry = nil
	}

	freshness := store.Evaluate(entry, f.maxAge, time.Now())

	var status Status
	switch freshness {
	case store.Missing:
		f.ensureRefresh(ctx, key, spawn)
		status = StatusMissing
		records = nil

	case store.Fresh:
		// Never spawns.
		status = StatusFresh

	case store.Stale:
		alive, err := f.jobs.IsAlive(ctx, key)
		if err != nil {
			f.logger.Warn().Err(err).Str("key", key).Msg("Job liveness check failed")
		}
		if alive {
			status = StatusUpdating
		} else {
			// Spawning only when not already alive prevents spawn storms
			// on repeated queries.
			f.ensureRefresh(ctx, key, spawn)
			status = StatusStale
		}
	}

	f.logger.Debug().
		Str("key", key).
		Str("status", string(status)).
		Int("records", len(records)).
		Msg("Foreground answer")

	return records, status, nil
}

// ensureRefresh fires a best-effort background refresh. Failures are logged
// and swallowed; they must never block the foreground answer.
func (f *Foreground) ensureRefresh(ctx context.Context, key string, spawn job.SpawnFunc) {
	if _, err := f.jobs.EnsureRunning(ctx, key, spawn); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("Background refresh not started")
	}
}

// decode unmarshals an entry's records. Reports false when the payload
// cannot be decoded.
func decode[T any](entry *store.Entry) ([]T, bool) {
	if entry == nil {
		return nil, true
	}
	var records []T
	if err := json.Unmarshal(entry.Data, &records); err != nil {
		return nil, false
	}
	return records, true
}

// IssueLookup resolves a batch of issue keys upstream in one call.
type IssueLookup interface {
	Issues(ctx context.Context, keys []string) ([]gateway.Issue, error)
}

// Recent resolves the recency list into issues, most recently used first.
// Keys that no longer exist upstream are pruned from the persisted list.
// Unlike Answer, this talks to the tracker.
func Recent(ctx context.Context, rec *store.Recency, lookup IssueLookup) ([]gateway.Issue, error) {
	byKey := make(map[string]gateway.Issue)

	survivors, err := rec.Resolve(ctx, func(ctx context.Context, keys []string) ([]string, error) {
		issues, err := lookup.Issues(ctx, keys)
		if err != nil {
			return nil, err
		}
		found := make([]string, 0, len(issues))
		for _, issue := range issues {
			byKey[issue.Key] = issue
			found = append(found, issue.Key)
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}

	// Recency order, not lookup order.
	issues := make([]gateway.Issue, 0, len(survivors))
	for _, key := range survivors {
		issues = append(issues, byKey[key])
	}
	return issues, nil
}
