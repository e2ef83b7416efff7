package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sentiscope/internal/artifact"
	"github.com/mohammad-safakhou/sentiscope/internal/session"
)

// History is the archived-session store trimmed by the sweeper.
type History interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]session.Session, error)
}

// Purger removes every stored representation of an artifact.
type Purger interface {
	Purge(ctx context.Context, a artifact.Artifact) error
}

const retentionLockKey = "sentiscope:retention:lock"

// Scheduler evicts finished sessions older than MaxAge, together with their
// archived rows and, when PurgeBlobs is set, their artifact blobs.
type Scheduler struct {
	Sessions   *session.Manager
	History    History
	Artifacts  Purger
	Rdb        redis.UniversalClient // optional; only one replica sweeps at a time
	Cron       string
	MaxAge     time.Duration
	PurgeBlobs bool
	Logger     *zap.Logger

	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Start runs sweeps on the cron schedule until Stop.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for {
			now := s.clock()
			timer := time.NewTimer(s.next(now).Sub(now))
			select {
			case <-s.stop:
				timer.Stop()
				return
			case <-timer.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				n, err := s.Sweep(ctx)
				cancel()
				if err != nil {
					s.logger().Warn("retention sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger().Info("retention sweep", zap.Int("sessions", n))
				}
			}
		}
	}()
}

// Stop ends the schedule and waits for a running sweep.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// next returns the first sweep time after from. An empty or invalid
// expression sweeps hourly.
func (s *Scheduler) next(from time.Time) time.Time {
	spec := strings.TrimSpace(s.Cron)
	if spec == "" {
		spec = "@hourly"
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return from.Add(time.Hour)
	}
	n := expr.Next(from)
	if n.IsZero() {
		return from.Add(time.Hour)
	}
	return n
}

func (s *Scheduler) maxAge() time.Duration {
	if s.MaxAge <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.MaxAge
}

// Sweep performs one eviction pass and returns the number of sessions removed.
// It returns 0 without error when another replica holds the lock.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, retentionLockKey, "1", 2*time.Minute).Result()
		if err != nil {
			return 0, fmt.Errorf("retention lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer s.Rdb.Del(context.WithoutCancel(ctx), retentionLockKey)
	}

	cutoff := s.clock().Add(-s.maxAge())
	evicted := map[string]session.Session{}
	var errs []error
	if s.Sessions != nil {
		for _, sess := range s.Sessions.Expired(cutoff) {
			s.Sessions.Delete(sess.ID)
			evicted[sess.ID] = sess
		}
	}
	if s.History != nil {
		rows, err := s.History.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("trim history: %w", err))
		}
		for _, sess := range rows {
			if _, ok := evicted[sess.ID]; !ok {
				evicted[sess.ID] = sess
			}
		}
	}
	if s.PurgeBlobs && s.Artifacts != nil {
		for _, sess := range evicted {
			for _, a := range sess.Artifacts {
				if err := s.Artifacts.Purge(ctx, a); err != nil {
					errs = append(errs, fmt.Errorf("purge artifact %s: %w", a.ID, err))
				}
			}
		}
	}
	return len(evicted), errors.Join(errs...)
}
