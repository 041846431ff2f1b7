package chains

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// Fetcher loads the list of chains present in the store.
type Fetcher interface {
	FetchChains(ctx context.Context) ([]string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]string, error)

// FetchChains implements Fetcher.
func (f FetcherFunc) FetchChains(ctx context.Context) ([]string, error) { return f(ctx) }

// Options tunes a Directory.
type Options struct {
	// Interval between background refreshes. Cron rounds anything below a second up to one second.
	Interval time.Duration
	// RetainOnFailure keeps the last published set when a refresh fails instead of publishing an empty one.
	RetainOnFailure bool
	// FetchTimeout bounds a single fetch.
	FetchTimeout time.Duration
	// OnPublish, when set, is called with every newly published set.
	OnPublish func(*Set)
}

// Directory holds the set of known chains and refreshes it in the background.
// Reads never block: they load the currently published *Set.
type Directory struct {
	fetcher Fetcher
	logger  *zap.Logger
	opts    Options

	current atomic.Pointer[Set]

	mu   sync.Mutex
	cron *cron.Cron
}

// New returns a Directory publishing an empty set until the first refresh.
func New(fetcher Fetcher, logger *zap.Logger, opts Options) *Directory {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{fetcher: fetcher, logger: logger, opts: opts}
	d.current.Store(NewSet(nil))
	return d
}

// Start runs an initial refresh and schedules the next ones every Interval.
// A failed initial refresh is logged and does not prevent the schedule from starting.
func (d *Directory) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cron != nil {
		return fmt.Errorf("chain directory already started")
	}

	_ = d.Refresh(ctx)

	cl := cronLogger{l: d.logger.Named("chains.cron").Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	spec := fmt.Sprintf("@every %s", d.opts.Interval)
	if _, err := c.AddFunc(spec, func() { _ = d.Refresh(ctx) }); err != nil {
		return fmt.Errorf("schedule chain refresh %q: %w", spec, err)
	}
	c.Start()
	d.cron = c

	d.logger.Info("Chain directory started",
		zap.Duration("interval", d.opts.Interval),
		zap.Int("chains", d.Chains().Len()),
		zap.Bool("retain_on_failure", d.opts.RetainOnFailure))
	return nil
}

// Refresh fetches the chains once and publishes the result.
// On failure it publishes an empty set, or keeps the current one when RetainOnFailure is set.
func (d *Directory) Refresh(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
	defer cancel()

	names, err := d.fetcher.FetchChains(fctx)
	if err != nil {
		d.logger.Warn("Failed to refresh chain directory",
			zap.Bool("retain_on_failure", d.opts.RetainOnFailure),
			zap.Error(err))
		if !d.opts.RetainOnFailure {
			d.publish(NewSet(nil))
		}
		return fmt.Errorf("refresh chain directory: %w", err)
	}

	set := NewSet(names)
	d.publish(set)
	d.logger.Debug("Chain directory refreshed", zap.Int("chains", set.Len()))
	return nil
}

func (d *Directory) publish(s *Set) {
	d.current.Store(s)
	if d.opts.OnPublish != nil {
		d.opts.OnPublish(s)
	}
}

// Chains returns the currently published set.
func (d *Directory) Chains() *Set {
	return d.current.Load()
}

// Snapshot returns the known chains, sorted.
func (d *Directory) Snapshot() []string {
	return d.Chains().Names()
}

// Contains reports whether chain is currently known.
func (d *Directory) Contains(chain string) bool {
	return d.Chains().Contains(chain)
}

// Shutdown stops the schedule and waits for a running refresh to return.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger routes cron scheduler events through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
