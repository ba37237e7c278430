// Package registry maintains the catalog of attribute names offered as
// suggestions while editing.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"processmap/internal/attr"
	"processmap/internal/domain"
)

// ErrLookup wraps failures reading the catalog or the dataset.
var ErrLookup = errors.New("lookup failure")

// Store is the persistence the registry needs.
type Store interface {
	ListAttributeNames(ctx context.Context) ([]domain.AttributeName, error)
	UpsertAttributeName(ctx context.Context, name string, kind attr.Kind, now string) error
	DeleteAttributeName(ctx context.Context, name string) (int64, error)
	ListAttributeKeySets(ctx context.Context) ([][]string, error)
}

type Registry struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	prunes singleflight.Group

	// pruneSeq numbers prune requests so a caller can tell whether a
	// shared scan started after it arrived.
	pruneSeq atomic.Uint64
}

func New(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source.
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Lookup returns catalog entries whose name contains partial, ignoring
// case. The entry equal to current is left out.
func (r *Registry) Lookup(ctx context.Context, partial, current string) ([]domain.AttributeName, error) {
	names, err := r.store.ListAttributeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list attribute names: %v", ErrLookup, err)
	}
	needle := strings.ToLower(strings.TrimSpace(partial))
	out := make([]domain.AttributeName, 0, len(names))
	for _, n := range names {
		if current != "" && n.Name == current {
			continue
		}
		if strings.Contains(strings.ToLower(n.Name), needle) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// Register records a name/type pair. Registering an existing pair is a no-op.
func (r *Registry) Register(ctx context.Context, name string, kind attr.Kind) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if !kind.Valid() {
		return fmt.Errorf("register %q: %w", name, attr.ErrInvalidKind)
	}
	return r.store.UpsertAttributeName(ctx, name, kind, r.now().UTC().Format(time.RFC3339))
}

// PruneIfUnused deletes name from the catalog when no sub-process in the
// dataset still uses it. Concurrent prunes of one name share a scan, but
// only one that started after the caller arrived; a caller that joined an
// older scan waits for a fresh one.
func (r *Registry) PruneIfUnused(ctx context.Context, name string) (bool, error) {
	ticket := r.pruneSeq.Add(1)
	for {
		v, err, _ := r.prunes.Do(name, func() (any, error) {
			start := r.pruneSeq.Load()
			pruned, err := r.prune(ctx, name)
			return pruneResult{pruned: pruned, start: start}, err
		})
		if err != nil {
			return false, err
		}
		res := v.(pruneResult)
		if res.start >= ticket {
			return res.pruned, nil
		}
	}
}

type pruneResult struct {
	pruned bool
	start  uint64
}

func (r *Registry) prune(ctx context.Context, name string) (bool, error) {
	used, err := r.inUse(ctx)
	if err != nil {
		return false, err
	}
	if used[name] {
		return false, nil
	}
	n, err := r.store.DeleteAttributeName(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete attribute name %q: %w", name, err)
	}
	if n > 0 {
		r.logger.Info("pruned attribute name", zap.String("attribute", name))
	}
	return n > 0, nil
}

// Sweep finds every catalog name no sub-process uses and deletes them
// unless dryRun is set. It returns the unused names.
func (r *Registry) Sweep(ctx context.Context, dryRun bool) ([]string, error) {
	names, err := r.store.ListAttributeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list attribute names: %v", ErrLookup, err)
	}
	used, err := r.inUse(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var unused []string
	for _, n := range names {
		if used[n.Name] || seen[n.Name] {
			continue
		}
		seen[n.Name] = true
		unused = append(unused, n.Name)
	}
	sort.Strings(unused)
	if dryRun {
		return unused, nil
	}
	for _, name := range unused {
		if _, err := r.store.DeleteAttributeName(ctx, name); err != nil {
			return unused, fmt.Errorf("delete attribute name %q: %w", name, err)
		}
	}
	if len(unused) > 0 {
		r.logger.Info("swept unused attribute names", zap.Strings("attributes", unused))
	}
	return unused, nil
}

func (r *Registry) inUse(ctx context.Context) (map[string]bool, error) {
	sets, err := r.store.ListAttributeKeySets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: scan attribute usage: %v", ErrLookup, err)
	}
	used := map[string]bool{}
	for _, keys := range sets {
		for _, k := range keys {
			used[k] = true
		}
	}
	return used, nil
}
