package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cabinet/cabinet/internal/model"
)

const (
	// DefaultPollInterval is how often the server is asked for changes.
	DefaultPollInterval = 5 * time.Second
	// DefaultLocalGuard is how long a local save shields its key from
	// remote values.
	DefaultLocalGuard = 3 * time.Second
)

// API is the part of Client the Poller uses.
type API interface {
	List(ctx context.Context, since int64) ([]*model.SyncEntry, int64, error)
	Put(ctx context.Context, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error)
}

// ApplyFunc receives a remote value that should replace the local one.
type ApplyFunc func(entry *model.SyncEntry)

// PollerConfig configures a Poller.
type PollerConfig struct {
	API          API
	Apply        ApplyFunc
	PollInterval time.Duration
	LocalGuard   time.Duration
	Logger       *slog.Logger
}

// Poller pulls remote changes on an interval and pushes local saves. A key
// saved locally is not overwritten by a remote value for LocalGuard after
// the save, so an in-flight edit is not replaced by the echo of an older
// write.
type Poller struct {
	api      API
	apply    ApplyFunc
	interval time.Duration
	guard    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	since     int64
	lastSaved map[string]time.Time
	running   bool
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.API == nil || cfg.Apply == nil {
		return nil, errors.New("syncclient: API and Apply are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LocalGuard <= 0 {
		cfg.LocalGuard = DefaultLocalGuard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		api:       cfg.API,
		apply:     cfg.Apply,
		interval:  cfg.PollInterval,
		guard:     cfg.LocalGuard,
		logger:    cfg.Logger.With("component", "syncclient.poller"),
		now:       time.Now,
		lastSaved: make(map[string]time.Time),
	}, nil
}

// Save records a local edit and pushes it. When the server already holds a
// newer value, that value is applied locally and returned with the
// *ConflictError.
func (p *Poller) Save(ctx context.Context, key string, value json.RawMessage) (*model.SyncEntry, error) {
	now := p.now()
	p.mu.Lock()
	p.lastSaved[key] = now
	p.mu.Unlock()

	entry, err := p.api.Put(ctx, key, value, now.UnixMilli())
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			p.forget(key)
			p.apply(conflict.Current)
			return conflict.Current, err
		}
		return nil, err
	}
	return entry, nil
}

// Poll fetches changes since the last poll once and applies the ones not
// shielded by a recent local save. It returns how many entries it applied.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	entries, serverTime, err := p.api.List(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list sync entries: %w", err)
	}

	now := p.now()
	applied := 0
	for _, e := range entries {
		if p.shielded(e.Key, now) {
			p.logger.Debug("skipping remote value, local save is recent", "key", e.Key)
			continue
		}
		p.apply(e)
		applied++
	}

	p.mu.Lock()
	if serverTime > p.since {
		p.since = serverTime
	}
	p.mu.Unlock()
	return applied, nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("syncclient: poller already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("sync poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) shielded(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	saved, ok := p.lastSaved[key]
	if !ok {
		return false
	}
	if now.Sub(saved) < p.guard {
		return true
	}
	delete(p.lastSaved, key)
	return false
}

func (p *Poller) forget(key string) {
	p.mu.Lock()
	delete(p.lastSaved, key)
	p.mu.Unlock()
}
