package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issuedeck/issuedeck/pkg/gateway"
	"github.com/issuedeck/issuedeck/pkg/job"
	"github.com/issuedeck/issuedeck/pkg/store"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// aliveProber reports every pid as alive or dead wholesale.
type aliveProber bool

func (p aliveProber) Alive(int) bool { return bool(p) }

// testHarness bundles the collaborators behind one foreground query.
type testHarness struct {
	store  *store.Store
	jobs   *job.Supervisor
	spawns int
}

func newHarness(t *testing.T, jobsAlive bool) *testHarness {
	t.Helper()

	client := setupTestRedis(t)
	jobs := job.NewSupervisor(client)
	jobs.SetProber(aliveProber(jobsAlive))

	return &testHarness{
		store: store.New(client),
		jobs:  jobs,
	}
}

func (h *testHarness) spawn() (int, error) {
	h.spawns++
	return 40000 + h.spawns, nil
}

func mustSetIssues(t *testing.T, st *store.Store, key string, issues []gateway.Issue) {
	t.Helper()
	data, err := json.Marshal(issues)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), key, data))
}

func TestAnswer_MissingSpawnsOnce(t *testing.T) {
	h := newHarness(t, false)
	f := New(h.store, h.jobs, 10*time.Minute)

	result, err := f.Answer(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, result.Status)
	assert.Empty(t, result.Issues)
	assert.Equal(t, 1, h.spawns, "missing entry triggers exactly one spawn")
}

func TestAnswer_FreshNeverSpawns(t *testing.T) {
	h := newHarness(t, false)
	f := New(h.store, h.jobs, 10*time.Minute)

	issues := []gateway.Issue{{Key: "PROJ-1", Summary: "One"}}
	mustSetIssues(t, h.store, "PROJ", issues)

	result, err := f.Answer(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusFresh, result.Status)
	assert.Equal(t, issues, result.Issues)
	assert.Zero(t, h.spawns, "fresh entries must not spawn")
}

func TestAnswer_StaleWithDeadJobSpawns(t *testing.T) {
	h := newHarness(t, false)
	// maxAge 0 classifies any stored entry as stale.
	f := New(h.store, h.jobs, 0)

	issues := []gateway.Issue{{Key: "PROJ-1", Summary: "One"}}
	mustSetIssues(t, h.store, "PROJ", issues)

	result, err := f.Answer(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusStale, result.Status)
	assert.Equal(t, issues, result.Issues, "stale data is still returned")
	assert.Equal(t, 1, h.spawns)
}

func TestAnswer_StaleWithLiveJobReportsUpdating(t *testing.T) {
	h := newHarness(t, true)
	f := New(h.store, h.jobs, 0)

	issues := []gateway.Issue{{Key: "PROJ-1", Summary: "One"}}
	mustSetIssues(t, h.store, "PROJ", issues)

	// Record a live job for the key first.
	_, err := h.jobs.EnsureRunning(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)
	spawnsBefore := h.spawns

	result, err := f.Answer(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusUpdating, result.Status)
	assert.Equal(t, issues, result.Issues)
	assert.Equal(t, spawnsBefore, h.spawns, "live job suppresses further spawns")
}

func TestAnswer_RepeatedStaleQueriesSpawnOnce(t *testing.T) {
	h := newHarness(t, false)
	f := New(h.store, h.jobs, 0)

	mustSetIssues(t, h.store, "PROJ", []gateway.Issue{{Key: "PROJ-1"}})

	// First query spawns; the handle now exists but the fake prober says
	// dead, so each query re-spawns. Flip the prober to alive to model the
	// job actually running.
	_, err := f.Answer(context.Background(), "PROJ", h.spawn)
	require.NoError(t, err)
	require.Equal(t, 1, h.spawns)

	h.jobs.SetProber(aliveProber(true))

	for i := 0; i < 3; i++ {
		result, err := f.Answer(context.Background(), "PROJ", h.spawn)
		require.NoError(t, err)
		assert.Equal(t, StatusUpdating, result.Status)
	}
	assert.Equal(t, 1, h.spawns, "no spawn storm on repeated queries")
}

func TestProjects_FreshCachedList(t *testing.T) {
	h := newHarness(t, false)
	projects := []gateway.Project{
		{Key: "PROJ", Name: "Project One"},
		{Key: "OPS", Name: "Operations"},
	}
	data, err := json.Marshal(projects)
	require.NoError(t, err)
	require.NoError(t, h.store.Set(context.Background(), "_projects", data))

	fg := New(h.store, h.jobs, time.Hour)
	result, err := fg.Projects(context.Background(), "_projects", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusFresh, result.Status)
	assert.Equal(t, projects, result.Projects)
	assert.Zero(t, h.spawns)
}

func TestProjects_MissingSpawnsRefresh(t *testing.T) {
	h := newHarness(t, false)

	fg := New(h.store, h.jobs, time.Hour)
	result, err := fg.Projects(context.Background(), "_projects", h.spawn)
	require.NoError(t, err)

	assert.Equal(t, StatusMissing, result.Status)
	assert.Empty(t, result.Projects)
	assert.Equal(t, 1, h.spawns)
}

func TestRecent_ResolvesInRecencyOrder(t *testing.T) {
	client := setupTestRedis(t)
	rec := store.NewRecency(client)
	ctx := context.Background()

	for _, key := range []string{"PROJ-3", "PROJ-2", "PROJ-1"} {
		require.NoError(t, rec.Touch(ctx, key))
	}

	// Lookup returns issues in arbitrary order; PROJ-2 is gone upstream.
	lookup := lookupFunc(func(ctx context.Context, keys []string) ([]gateway.Issue, error) {
		return []gateway.Issue{
			{Key: "PROJ-3", Summary: "Three"},
			{Key: "PROJ-1", Summary: "One"},
		}, nil
	})

	issues, err := Recent(ctx, rec, lookup)
	require.NoError(t, err)

	require.Len(t, issues, 2)
	assert.Equal(t, "PROJ-1", issues[0].Key, "most recently touched first")
	assert.Equal(t, "PROJ-3", issues[1].Key)

	// The pruned list is persisted.
	keys, err := rec.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PROJ-1", "PROJ-3"}, keys)
}

// lookupFunc adapts a function to IssueLookup.
type lookupFunc func(ctx context.Context, keys []string) ([]gateway.Issue, error)

func (f lookupFunc) Issues(ctx context.Context, keys []string) ([]gateway.Issue, error) {
	return f(ctx, keys)
}

func TestFilterIssues(t *testing.T) {
	issues := []gateway.Issue{
		{Key: "PROJ-1", Summary: "Fix login crash"},
		{Key: "PROJ-2", Summary: "Add dark mode"},
		{Key: "PROJ-3", Summary: "Login page redesign"},
	}

	assert.Equal(t, issues, FilterIssues(issues, ""), "empty query returns input")

	matched := FilterIssues(issues, "login")
	require.Len(t, matched, 2)
	for _, issue := range matched {
		assert.Contains(t, []string{"PROJ-1", "PROJ-3"}, issue.Key)
	}

	assert.Empty(t, FilterIssues(issues, "zzzzzz"))
}

func TestFilterProjects(t *testing.T) {
	projects := []gateway.Project{
		{Key: "ALPHA", Name: "Alpha Tools"},
		{Key: "BETA", Name: "Beta Service"},
	}

	matched := FilterProjects(projects, "alpha")
	require.Len(t, matched, 1)
	assert.Equal(t, "ALPHA", matched[0].Key)
}
