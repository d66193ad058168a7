// Package integration exercises the full launcher flow against a real Redis
// instance started via testcontainers and a mocked tracker.
package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/issuedeck/issuedeck/internal/testutil"
	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/job"
	"github.com/issuedeck/issuedeck/pkg/pagination"
	"github.com/issuedeck/issuedeck/pkg/query"
	"github.com/issuedeck/issuedeck/pkg/refresh"
	"github.com/issuedeck/issuedeck/pkg/store"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newGateway(t *testing.T, tracker *testutil.MockTracker) *gateway.Client {
	t.Helper()

	cfg := gateway.DefaultConfig(tracker.URL(), "tester", "secret")
	cfg.Retry.MaxAttempts = 1
	gw, err := gateway.New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	return gw
}

// TestRefreshCycleThenForegroundAnswer runs the full flow: empty cache,
// foreground answer triggers nothing here (spawn is stubbed), a refresh
// cycle commits, then the foreground answer serves fresh data.
func TestRefreshCycleThenForegroundAnswer(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := testutil.NewMockTracker()
	defer tracker.Close()
	tracker.SetProject("PROJ", testutil.GenerateIssues("PROJ", 120))

	gw := newGateway(t, tracker)
	st := store.New(redisClient)
	jobs := job.NewSupervisor(redisClient)
	fg := query.New(st, jobs, time.Hour)

	ctx := context.Background()
	spawns := 0
	spawn := func() (int, error) {
		spawns++
		return 41000 + spawns, nil
	}

	// Cold cache answers missing and triggers a refresh.
	result, err := fg.Answer(ctx, "PROJ", spawn)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Status != query.StatusMissing {
		t.Errorf("Status = %q, want missing", result.Status)
	}
	if spawns != 1 {
		t.Errorf("spawns = %d, want 1", spawns)
	}

	// The refresh cycle the spawn stands in for.
	total, err := gw.Total(ctx, "PROJ")
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if err := refresh.Run(ctx, st, gw, pagination.DefaultConfig(), "PROJ", total, 50); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Warm cache answers fresh without another spawn.
	result, err = fg.Answer(ctx, "PROJ", spawn)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Status != query.StatusFresh {
		t.Errorf("Status = %q, want fresh", result.Status)
	}
	if len(result.Issues) != 120 {
		t.Errorf("len(Issues) = %d, want 120", len(result.Issues))
	}
	if spawns != 1 {
		t.Errorf("spawns = %d, want still 1", spawns)
	}
}

// TestFailedRefreshKeepsServingStaleData verifies a broken tracker never
// corrupts the cache: the old snapshot keeps being served.
func TestFailedRefreshKeepsServingStaleData(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := testutil.NewMockTracker()
	defer tracker.Close()
	tracker.SetProject("PROJ", testutil.GenerateIssues("PROJ", 30))

	gw := newGateway(t, tracker)
	st := store.New(redisClient)
	ctx := context.Background()

	if err := refresh.Run(ctx, st, gw, pagination.DefaultConfig(), "PROJ", 30, 50); err != nil {
		t.Fatalf("initial Run() error = %v", err)
	}

	// Tracker degrades; subsequent refreshes must fail without touching
	// the committed entry.
	tracker.SetResponse("/search", testutil.NewServerErrorResponse())

	if err := refresh.Run(ctx, st, gw, pagination.DefaultConfig(), "PROJ", 30, 50); err == nil {
		t.Fatal("Run() = nil, want error from degraded tracker")
	}

	entry, err := st.Get(ctx, "PROJ")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var issues []gateway.Issue
	if err := json.Unmarshal(entry.Data, &issues); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(issues) != 30 {
		t.Errorf("len(issues) = %d, want 30 from the previous snapshot", len(issues))
	}
}

// TestRecencyRoundTrip touches issues, resolves them through the tracker
// and verifies dead keys are pruned from the persisted list.
func TestRecencyRoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := testutil.NewMockTracker()
	defer tracker.Close()
	tracker.SetProject("PROJ", []testutil.TrackerIssue{
		{Key: "PROJ-1", Summary: "first"},
		{Key: "PROJ-3", Summary: "third"},
	})

	gw := newGateway(t, tracker)
	rec := store.NewRecency(redisClient)
	ctx := context.Background()

	for _, key := range []string{"PROJ-1", "PROJ-2", "PROJ-3"} {
		if err := rec.Touch(ctx, key); err != nil {
			t.Fatalf("Touch(%s) error = %v", key, err)
		}
	}

	issues, err := query.Recent(ctx, rec, gw)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}

	// PROJ-2 does not exist upstream and must be pruned; order stays
	// most recent first.
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	if issues[0].Key != "PROJ-3" || issues[1].Key != "PROJ-1" {
		t.Errorf("order = [%s %s], want [PROJ-3 PROJ-1]", issues[0].Key, issues[1].Key)
	}

	keys, err := rec.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("persisted keys = %v, want the pruned pair", keys)
	}
}
