// Package local is the default vector index: entries persisted through gorm (SQLite or MySQL)
// and searched by brute-force cosine distance over an in-memory snapshot. Every write bumps a
// generation row in the same transaction; reads and writes compare it first and reload the
// snapshot when another process has changed the entries.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gorm.io/gorm"

	"docqa/internal/domain"
	"docqa/internal/model"
	"docqa/internal/repository"
	"docqa/internal/vectorindex"
)

var _ vectorindex.Index = (*Index)(nil)

// Index keeps a snapshot of every entry in memory. Writers are serialised and update the
// snapshot only after their transaction commits, so readers never observe a partial write.
type Index struct {
	repo   *repository.IndexEntryRepository
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]domain.IndexEntry
	dim     int
	gen     int64
}

// staleGeneration never matches a stored generation and forces the next access to reload.
const staleGeneration = -1

// Open migrates the entry table and loads the snapshot.
func Open(ctx context.Context, db *gorm.DB, logger *slog.Logger) (*Index, error) {
	repo := repository.NewIndexEntryRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{
		repo:    repo,
		logger:  logger,
		entries: make(map[string]domain.IndexEntry),
		gen:     staleGeneration,
	}
	if err := idx.Reload(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reload replaces the snapshot with the persisted state.
func (i *Index) Reload(ctx context.Context) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	return i.reloadLocked(ctx)
}

func (i *Index) reloadLocked(ctx context.Context) error {
	rows, gen, err := i.repo.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}
	entries := make(map[string]domain.IndexEntry, len(rows))
	dim := 0
	for idx := range rows {
		e, err := rows[idx].ToDomain()
		if err != nil {
			return fmt.Errorf("%w: decode entry %s failed: %w", domain.ErrIndexIO, rows[idx].ID, err)
		}
		entries[e.ID] = e
		dim = len(e.Vector)
	}

	i.mu.Lock()
	i.entries = entries
	i.dim = dim
	i.gen = gen
	i.mu.Unlock()

	i.logger.Debug("vector index loaded", "entries", len(entries), "dimension", dim, "generation", gen)
	return nil
}

// sync reloads the snapshot when the stored generation moved past it.
func (i *Index) sync(ctx context.Context) error {
	gen, err := i.repo.Generation(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}
	if gen == i.generation() {
		return nil
	}
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	return i.syncLocked(ctx)
}

// syncLocked is sync for callers holding writeMu.
func (i *Index) syncLocked(ctx context.Context) error {
	gen, err := i.repo.Generation(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}
	if gen == i.generation() {
		return nil
	}
	return i.reloadLocked(ctx)
}

// applyLocked applies a committed local write to the snapshot when gen directly follows it. An
// unchanged gen means the write touched nothing. Any other gen means another process wrote in
// between, so the snapshot is reloaded; the write is already durable, so a failed reload only
// marks the snapshot stale.
func (i *Index) applyLocked(ctx context.Context, gen int64, apply func()) {
	i.mu.Lock()
	if gen == i.gen {
		i.mu.Unlock()
		return
	}
	if gen == i.gen+1 {
		apply()
		i.gen = gen
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()
	if err := i.reloadLocked(ctx); err != nil {
		i.logger.Warn("vector index reload failed", "error", err)
		i.mu.Lock()
		i.gen = staleGeneration
		i.mu.Unlock()
	}
}

func (i *Index) generation() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gen
}

// Len returns the number of entries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return i.write(ctx, nil, entries)
}

func (i *Index) Replace(ctx context.Context, filter domain.Filter, entries []domain.IndexEntry) error {
	return i.write(ctx, filter, entries)
}

func (i *Index) DeleteWhere(ctx context.Context, filter domain.Filter) (int, error) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	if err := i.syncLocked(ctx); err != nil {
		return 0, err
	}

	source, ids := i.matching(filter)
	if source == "" && len(ids) == 0 {
		return 0, nil
	}
	deleted, gen, err := i.repo.Delete(ctx, source, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}
	i.applyLocked(ctx, gen, func() { i.removeLocked(filter) })
	return int(deleted), nil
}

func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.sync(ctx); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.dim != 0 && len(vector) != i.dim {
		return nil, vectorindex.DimensionError(len(vector), i.dim)
	}
	all := make([]domain.IndexEntry, 0, len(i.entries))
	for _, e := range i.entries {
		all = append(all, e)
	}
	return vectorindex.Rank(vector, all, k), nil
}

func (i *Index) Sources(ctx context.Context) ([]string, error) {
	if err := i.sync(ctx); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range i.entries {
		if s, ok := e.Metadata[domain.MetaSource]; ok {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// write deletes the entries matching filter (when non-nil) and stores entries in one transaction.
func (i *Index) write(ctx context.Context, filter domain.Filter, entries []domain.IndexEntry) error {
	dim, err := vectorindex.ValidateEntries(entries)
	if err != nil {
		return err
	}
	rows := make([]model.IndexEntry, len(entries))
	for n, e := range entries {
		row, err := model.NewIndexEntry(e)
		if err != nil {
			return fmt.Errorf("%w: encode entry %s failed: %w", domain.ErrIndexIO, e.ID, err)
		}
		rows[n] = row
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	if err := i.syncLocked(ctx); err != nil {
		return err
	}

	var source string
	var ids []string
	if filter != nil {
		source, ids = i.matching(filter)
	}
	if dim != 0 && !i.dimensionAccepts(dim, filter) {
		return vectorindex.DimensionError(dim, i.currentDim())
	}
	_, gen, err := i.repo.Replace(ctx, source, ids, rows)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexIO, err)
	}

	i.applyLocked(ctx, gen, func() {
		if filter != nil {
			i.removeLocked(filter)
		}
		for _, e := range entries {
			e.Metadata = e.Metadata.Clone()
			i.entries[e.ID] = e
		}
		if dim != 0 {
			i.dim = dim
		}
	})
	return nil
}

// dimensionAccepts reports whether vectors of dim may be stored. A different dimension is only
// accepted when the write replaces every existing entry.
func (i *Index) dimensionAccepts(dim int, filter domain.Filter) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.dim == 0 || i.dim == dim {
		return true
	}
	if filter == nil {
		return false
	}
	for _, e := range i.entries {
		if !filter.Match(e.Metadata) {
			return false
		}
	}
	return true
}

func (i *Index) currentDim() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// matching translates a filter into a row predicate: a pure source filter is pushed down as a
// source condition, anything else is resolved to ids from the snapshot.
func (i *Index) matching(filter domain.Filter) (string, []string) {
	if src, ok := filter[domain.MetaSource]; ok && len(filter) == 1 {
		return src, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	var ids []string
	for id, e := range i.entries {
		if filter.Match(e.Metadata) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return "", ids
}

func (i *Index) removeLocked(filter domain.Filter) int {
	removed := 0
	for id, e := range i.entries {
		if filter.Match(e.Metadata) {
			delete(i.entries, id)
			removed++
		}
	}
	if len(i.entries) == 0 {
		i.dim = 0
	}
	return removed
}
