package job

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
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

// fakeProber reports liveness from a fixed pid set.
type fakeProber struct {
	alive map[int]bool
}

func (p fakeProber) Alive(pid int) bool { return p.alive[pid] }

// countingSpawn returns a SpawnFunc handing out sequential pids.
func countingSpawn(count *int, basePID int) SpawnFunc {
	return func() (int, error) {
		*count++
		return basePID + *count, nil
	}
}

func TestSupervisor_EnsureRunning_SpawnsWhenMissing(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))
	s.SetProber(fakeProber{alive: map[int]bool{1001: true}})
	ctx := context.Background()

	spawns := 0
	started, err := s.EnsureRunning(ctx, "PROJ", countingSpawn(&spawns, 1000))
	if err != nil {
		t.Fatalf("EnsureRunning failed: %v", err)
	}
	if !started {
		t.Error("Expected a job to be spawned")
	}
	if spawns != 1 {
		t.Errorf("Expected 1 spawn, got %d", spawns)
	}

	alive, err := s.IsAlive(ctx, "PROJ")
	if err != nil {
		t.Fatalf("IsAlive failed: %v", err)
	}
	if !alive {
		t.Error("Job should be alive after spawn")
	}
}

func TestSupervisor_EnsureRunning_Idempotent(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))
	s.SetProber(fakeProber{alive: map[int]bool{1001: true}})
	ctx := context.Background()

	spawns := 0
	spawn := countingSpawn(&spawns, 1000)

	// Second call while the first job is alive must be a no-op.
	for i := 0; i < 2; i++ {
		if _, err := s.EnsureRunning(ctx, "PROJ", spawn); err != nil {
			t.Fatalf("EnsureRunning failed: %v", err)
		}
	}

	if spawns != 1 {
		t.Errorf("Expected exactly 1 spawn total, got %d", spawns)
	}
}

func TestSupervisor_CrashedJobSelfHeals(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))
	ctx := context.Background()

	// First job spawns with pid 2001, then "crashes": prober says dead.
	spawns := 0
	s.SetProber(fakeProber{alive: map[int]bool{}})

	if _, err := s.EnsureRunning(ctx, "PROJ", countingSpawn(&spawns, 2000)); err != nil {
		t.Fatalf("EnsureRunning failed: %v", err)
	}

	alive, err := s.IsAlive(ctx, "PROJ")
	if err != nil {
		t.Fatalf("IsAlive failed: %v", err)
	}
	if alive {
		t.Error("Dead process should report not alive despite recorded handle")
	}

	// The orphaned handle must not block a new spawn.
	started, err := s.EnsureRunning(ctx, "PROJ", countingSpawn(&spawns, 2000))
	if err != nil {
		t.Fatalf("EnsureRunning failed: %v", err)
	}
	if !started {
		t.Error("Expected respawn after crash")
	}
	if spawns != 2 {
		t.Errorf("Expected 2 spawns total, got %d", spawns)
	}
}

func TestSupervisor_SpawnFailureSurfaced(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))
	s.SetProber(fakeProber{alive: map[int]bool{}})
	ctx := context.Background()

	spawnErr := errors.New("executable not found")
	_, err := s.EnsureRunning(ctx, "PROJ", func() (int, error) {
		return 0, spawnErr
	})
	if !errors.Is(err, spawnErr) {
		t.Fatalf("Expected spawn error surfaced, got %v", err)
	}

	// No handle recorded for a failed spawn.
	alive, err := s.IsAlive(ctx, "PROJ")
	if err != nil {
		t.Fatalf("IsAlive failed: %v", err)
	}
	if alive {
		t.Error("Failed spawn must not leave a live handle")
	}
}

func TestSupervisor_KeysAreIndependent(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))
	s.SetProber(fakeProber{alive: map[int]bool{3001: true}})
	ctx := context.Background()

	spawns := 0
	if _, err := s.EnsureRunning(ctx, "PROJ-A", countingSpawn(&spawns, 3000)); err != nil {
		t.Fatalf("EnsureRunning failed: %v", err)
	}

	// A live job for one key must not suppress refreshes for another.
	started, err := s.EnsureRunning(ctx, "PROJ-B", countingSpawn(&spawns, 3000))
	if err != nil {
		t.Fatalf("EnsureRunning failed: %v", err)
	}
	if !started {
		t.Error("Expected independent spawn for second key")
	}
	if spawns != 2 {
		t.Errorf("Expected 2 spawns, got %d", spawns)
	}
}

func TestSupervisor_IsAlive_NoHandle(t *testing.T) {
	s := NewSupervisor(setupTestRedis(t))

	alive, err := s.IsAlive(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("IsAlive failed: %v", err)
	}
	if alive {
		t.Error("Unknown key should not be alive")
	}
}

func TestProcessProber_OwnProcess(t *testing.T) {
	p := processProber{}

	if !p.Alive(os.Getpid()) {
		t.Error("Own process should be alive")
	}
	if p.Alive(0) {
		t.Error("pid 0 should not probe as alive")
	}
	if p.Alive(-1) {
		t.Error("negative pid should not probe as alive")
	}
}
