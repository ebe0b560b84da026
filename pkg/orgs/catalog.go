package orgs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// plansFile is the on-disk layout of a plans override file:
//
//	plans:
//	  pro:
//	    caps: {pages: 150}
//	    overage: {allowed: true, unit_price_cents: {pages: 120}}
type plansFile struct {
	Plans map[PlanTier]*PlanLimits `yaml:"plans"`
}

// Catalog is the plan-to-limits table. It starts from DefaultPlans and can
// be overridden from a YAML file, optionally reloaded when the file changes.
type Catalog struct {
	mu     sync.RWMutex
	plans  map[PlanTier]*PlanLimits
	logger logrus.FieldLogger

	debounce time.Duration
}

// NewCatalog creates a catalog holding the default plans
func NewCatalog(logger logrus.FieldLogger) *Catalog {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Catalog{
		plans:    DefaultPlans(),
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
}

// Limits returns the limits of plan. The returned value must not be modified.
func (c *Catalog) Limits(plan PlanTier) (*PlanLimits, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.plans[plan]
	return l, ok
}

// Plans lists the known plans in name order
func (c *Catalog) Plans() []PlanTier {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PlanTier, 0, len(c.plans))
	for p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParsePlans decodes a plans file and validates every entry
func ParsePlans(data []byte) (map[PlanTier]*PlanLimits, error) {
	var f plansFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plans: %w", err)
	}
	for name, limits := range f.Plans {
		if limits == nil {
			return nil, fmt.Errorf("plan %s has no limits", name)
		}
		limits.Plan = name
		if err := limits.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Plans, nil
}

// LoadFile replaces the catalog with the defaults overlaid by the plans in
// path. A plan named in the file replaces the default plan of that name
// whole. On error the current table is kept.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plans file: %w", err)
	}
	overrides, err := ParsePlans(data)
	if err != nil {
		return err
	}

	plans := DefaultPlans()
	for name, limits := range overrides {
		plans[name] = limits
	}

	c.mu.Lock()
	c.plans = plans
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"path":  path,
		"plans": len(plans),
	}).Info("Loaded plan catalog")
	return nil
}

// Watch reloads path whenever it changes, until ctx is cancelled. The parent
// directory is watched so editors that replace the file are handled. A bad
// file is logged and the previous table stays in effect.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		if err := c.LoadFile(target); err != nil {
			c.logger.WithError(err).WithField("path", target).Error("Plan catalog reload failed")
		}
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(c.debounce, reload)
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			c.logger.WithError(err).Warn("Plan file watcher error")
		}
	}
}
