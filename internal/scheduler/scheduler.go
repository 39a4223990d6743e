// Package scheduler runs the periodic maintenance jobs on cron schedules.
// Each run holds a Redis lock so that only one replica executes a job at a
// time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/common/metrics"
	"storefront-workers/internal/common/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const lockPrefix = "scheduler:lock:"

// Run outcomes reported in metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// ErrLocked is returned by RunNow when another run holds the job lock.
var ErrLocked = errors.New("job is already running")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// JobFunc is one job body. The returned fields are logged on success.
type JobFunc func(ctx context.Context) (map[string]interface{}, error)

type job struct {
	name string
	spec string
	fn   JobFunc
}

type Scheduler struct {
	cron    *cron.Cron
	rdb     *redis.Client
	lockTTL time.Duration
	timeout time.Duration
	obs     *observability.Observability
	logger  logger.Logger
	token   func() string

	mu   sync.Mutex
	jobs map[string]job
}

// New builds a scheduler. A nil rdb disables locking.
func New(rdb *redis.Client, lockTTL time.Duration, obs *observability.Observability, log logger.Logger) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	l := log.Named("scheduler")
	cl := cronLogger{log: l}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		rdb:     rdb,
		lockTTL: lockTTL,
		timeout: lockTTL,
		obs:     obs,
		logger:  l,
		token:   uuid.NewString,
		jobs:    make(map[string]job),
	}
}

// Register adds a job under name. An empty spec registers the job for
// RunNow only.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	if spec != "" {
		_, err := s.cron.AddFunc(spec, func() {
			_ = s.run(context.Background(), name, fn)
		})
		if err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", name, spec, err)
		}
	}
	s.jobs[name] = job{name: name, spec: spec, fn: fn}
	return nil
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunNow executes a registered job immediately, under the same lock as the
// scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, name, j.fn)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{"jobs": s.Jobs()})
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", nil)
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn JobFunc) error {
	fields := map[string]interface{}{"job": name}

	token, acquired, err := s.lock(ctx, name)
	if err != nil {
		metrics.SchedulerJobRuns.WithLabelValues(name, OutcomeSkipped).Inc()
		s.logger.WithError(err).Error("failed to acquire job lock", fields)
		return err
	}
	if !acquired {
		metrics.SchedulerJobRuns.WithLabelValues(name, OutcomeSkipped).Inc()
		s.logger.Debug("job already running elsewhere", fields)
		return ErrLocked
	}
	defer s.unlock(name, token)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := observability.Tracer().Start(ctx, "scheduler."+name, trace.WithAttributes(attribute.String("job", name)))
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.SchedulerJobRuns.WithLabelValues(name, outcome).Inc()
	metrics.SchedulerJobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	s.obs.RecordJobDuration(ctx, name, elapsed, outcome)

	fields["durationMs"] = elapsed.Milliseconds()
	if err != nil {
		s.logger.WithError(err).Error("job failed", fields)
		return err
	}
	for k, v := range result {
		fields[k] = v
	}
	s.logger.Info("job completed", fields)
	return nil
}

func (s *Scheduler) lock(ctx context.Context, name string) (string, bool, error) {
	if s.rdb == nil {
		return "", true, nil
	}
	token := s.token()
	ok, err := s.rdb.SetNX(ctx, lockPrefix+name, token, s.lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// unlock deletes the lock only if this run still owns it.
func (s *Scheduler) unlock(name, token string) {
	if s.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, s.rdb, []string{lockPrefix + name}, token).Err(); err != nil && err != redis.Nil {
		s.logger.WithError(err).Warn("failed to release job lock", map[string]interface{}{"job": name})
	}
}

// cronLogger feeds cron's own messages, including recovered job panics, into
// the service logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).Error(msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
