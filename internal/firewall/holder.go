package firewall

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/eleven-am/fwmatch/internal/domain"
)

// Loader returns the complete rule set for one reload.
type Loader func(ctx context.Context) ([]domain.RuleRecord, error)

// Firewall publishes the current Store. Reloads build a new Store and swap
// it in; in-flight queries keep using the store they started with.
type Firewall struct {
	current atomic.Pointer[Store]
	load    Loader
	mode    domain.IndexMode
	logger  *log.Logger
	reloads singleflight.Group
}

type Option func(*Firewall)

func WithMode(mode domain.IndexMode) Option {
	return func(f *Firewall) {
		f.mode = mode
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(f *Firewall) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New returns a Firewall that rejects everything until the first successful
// Reload.
func New(load Loader, opts ...Option) *Firewall {
	f := &Firewall{
		load:   load,
		mode:   domain.ModeTree,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.current.Store(emptyStore(f.mode))
	return f
}

func (f *Firewall) Store() *Store {
	return f.current.Load()
}

func (f *Firewall) AcceptPacket(direction, protocol string, port int, ip string) (bool, error) {
	return f.current.Load().AcceptPacket(direction, protocol, port, ip)
}

// Reload loads and builds a fresh store. Concurrent callers share a single
// reload, which runs detached from any one caller's cancellation; a caller
// whose ctx ends stops waiting and gets ctx.Err() while the shared reload
// finishes for the others. On failure the current store stays in place.
func (f *Firewall) Reload(ctx context.Context) error {
	result := f.reloads.DoChan("reload", func() (interface{}, error) {
		return nil, f.reload(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		return res.Err
	}
}

func (f *Firewall) reload(ctx context.Context) error {
	started := time.Now()

	records, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	store, err := Build(records, f.mode)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	f.current.Store(store)

	f.logger.Info("Rules loaded", "rules", store.Len(), "mode", store.Mode(), "took", time.Since(started))
	for _, report := range store.Report() {
		if report.Tree != nil {
			f.logger.Debug("Bucket compiled", "bucket", report.Bucket, "rules", report.Rules,
				"nodes", report.Tree.Nodes, "depth", report.Tree.Depth, "max_width", report.Tree.MaxWidth)
			continue
		}
		f.logger.Debug("Bucket compiled", "bucket", report.Bucket, "rules", report.Rules)
	}
	return nil
}

// Run reloads immediately and then on every tick until ctx is cancelled. A
// non-positive interval reloads once.
func (f *Firewall) Run(ctx context.Context, interval time.Duration) error {
	if err := f.Reload(ctx); err != nil {
		f.logger.Error("Rule reload failed", "error", err)
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Reload(ctx); err != nil {
				f.logger.Error("Rule reload failed", "error", err)
			}
		}
	}
}
