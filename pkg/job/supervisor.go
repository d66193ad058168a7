// Package job ensures at most one live background refresh job per cache key
// across process boundaries.
//
// A job's identity (pid, start time) is recorded in Redis at spawn time, but
// liveness is always re-derived from the OS process table, never from the
// record alone. A job that crashed mid-refresh therefore counts as "not
// running" on the next probe and leaves no stale lock behind.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/issuedeck/issuedeck/pkg/logging"
)

const handlePrefix = "issuedeck:job:"

var (
	jobsSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuedeck_jobs_spawned_total",
		Help: "Total background refresh jobs spawned",
	})

	jobSpawnErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuedeck_job_spawn_errors_total",
		Help: "Total background job spawn failures",
	})
)

// Handle records the identity of a spawned background job. It exists only
// while the process is alive; liveness is polled from the OS, there is no
// explicit done signal.
type Handle struct {
	Key       string    `json:"key"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// SpawnFunc starts a detached background process and returns its pid.
type SpawnFunc func() (pid int, err error)

// Prober reports whether a recorded process is currently alive.
type Prober interface {
	Alive(pid int) bool
}

// Supervisor coordinates background refresh jobs through shared Redis state
// and OS liveness probes.
type Supervisor struct {
	redis  *redis.Client
	prober Prober
	logger zerolog.Logger
}

// NewSupervisor creates a supervisor using the OS process table for
// liveness probes.
func NewSupervisor(redisClient *redis.Client) *Supervisor {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Supervisor{
		redis:  redisClient,
		prober: processProber{},
		logger: logging.NewLogger("job"),
	}
}

// SetProber replaces the liveness prober (for testing).
func (s *Supervisor) SetProber(p Prober) {
	s.prober = p
}

// EnsureRunning starts a background job for key unless one is already
// alive. Returns true when a new job was spawned. Spawn failures are
// surfaced to the caller but must not block the foreground answer; refresh
// is best-effort.
func (s *Supervisor) EnsureRunning(ctx context.Context, key string, spawn SpawnFunc) (bool, error) {
	alive, err := s.IsAlive(ctx, key)
	if err != nil {
		return false, err
	}
	if alive {
		s.logger.Debug().Str("key", key).Msg("Refresh job already running")
		return false, nil
	}

	pid, err := spawn()
	if err != nil {
		jobSpawnErrors.Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to spawn refresh job")
		return false, fmt.Errorf("spawn job for %s: %w", key, err)
	}

	handle := Handle{
		Key:       key,
		PID:       pid,
		StartedAt: time.Now(),
	}
	data, err := json.Marshal(&handle)
	if err != nil {
		return false, fmt.Errorf("marshal job handle: %w", err)
	}
	if err := s.redis.Set(ctx, handlePrefix+key, data, 0).Err(); err != nil {
		return false, fmt.Errorf("record job handle: %w", err)
	}

	jobsSpawned.Inc()
	s.logger.Info().
		Str("key", key).
		Int("pid", pid).
		Msg("Spawned background refresh job")

	return true, nil
}

// IsAlive probes whether the job recorded for key is still running. A
// missing or unreadable handle, or a dead process, all mean "not running";
// an orphaned record from a crashed job self-heals this way.
func (s *Supervisor) IsAlive(ctx context.Context, key string) (bool, error) {
	data, err := s.redis.Get(ctx, handlePrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get job handle: %w", err)
	}

	var handle Handle
	if err := json.Unmarshal(data, &handle); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Corrupt job handle, treating as not running")
		return false, nil
	}

	alive := s.prober.Alive(handle.PID)
	s.logger.Debug().
		Str("key", key).
		Int("pid", handle.PID).
		Bool("alive", alive).
		Msg("Probed job liveness")

	return alive, nil
}
