package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconciler rewrites stored records so they match what the Converter
// currently produces, e.g., after index or schema changes.
type Reconciler struct {
	store  *Store
	logger *slog.Logger
}

// NewReconciler creates a Reconciler writing through s, so cache regions see
// its writes like any other.
func NewReconciler(s *Store) *Reconciler {
	return &Reconciler{store: s, logger: s.logger}
}

// RefreshResult reports the progress of one Refresh pass.
type RefreshResult struct {
	// Processed is the number of stored records examined.
	Processed int

	// Rewritten is the number of records whose recomputed form differed.
	Rewritten int

	// Rekeyed is the number of rewritten records stored under a new key;
	// their old keys were deleted.
	Rekeyed int

	// Stopped is true when the deadline ended the pass early.
	Stopped bool
}

// Rebuild re-reads and rewrites every typ entry, without diffing. It scans
// the whole kind and produces heavy store traffic; do not call it on a
// user-facing request path. It returns the number of records rewritten.
func (r *Reconciler) Rebuild(ctx context.Context, typ string) (int, error) {
	if _, ok := r.store.registry.Lookup(typ); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnresolvedType, typ)
	}
	kind := EscapeTypeName(typ)
	chunk := r.store.config.RebuildChunkSize

	count := 0
	cursor := ""
	for {
		recs, next, err := r.store.scan(ctx, kind, cursor, chunk)
		if err != nil {
			return count, err
		}
		for _, old := range recs {
			fresh, ok := r.recompute(old)
			if !ok {
				continue
			}
			if err := r.replace(ctx, old, fresh); err != nil {
				return count, err
			}
			count++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	r.logger.Info("rebuild completed", "type", typ, "rewritten", count)
	return count, nil
}

// Refresh rewrites the typ records whose recomputed form differs from the
// stored one, ignoring the change time. It scans fixed-size chunks by cursor
// and checks deadline before each chunk and each record, returning the
// progress so far once time runs out. Records written under a new key may be
// examined again later in the same pass; they compare equal and are skipped. A second pass over unchanged data writes nothing.
func (r *Reconciler) Refresh(ctx context.Context, typ string, deadline Deadline) (RefreshResult, error) {
	var res RefreshResult
	if _, ok := r.store.registry.Lookup(typ); !ok {
		return res, fmt.Errorf("%w: %q", ErrUnresolvedType, typ)
	}
	if deadline == nil {
		deadline = NoDeadline
	}
	kind := EscapeTypeName(typ)
	chunk := r.store.config.ChunkSize

	scanned := 0
	cursor := ""
	for scanned < r.store.config.ScanCap {
		if deadline.TimeRunningOut() {
			res.Stopped = true
			break
		}
		recs, next, err := r.store.scan(ctx, kind, cursor, chunk)
		if err != nil {
			return res, err
		}
		scanned += len(recs)
		for _, old := range recs {
			if deadline.TimeRunningOut() {
				res.Stopped = true
				r.logRefresh(typ, res)
				return res, nil
			}
			res.Processed++

			fresh, ok := r.recompute(old)
			if !ok || fresh.SameContent(old) {
				continue
			}
			if err := r.replace(ctx, old, fresh); err != nil {
				return res, err
			}
			res.Rewritten++
			if !fresh.Key.Equal(old.Key) {
				res.Rekeyed++
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	r.logRefresh(typ, res)
	return res, nil
}

// recompute decodes old and converts it back into a record.
func (r *Reconciler) recompute(old Record) (Record, bool) {
	e, err := r.store.conv.decode(old)
	if err != nil {
		r.logger.Warn("skipping undecodable record", "key", old.Key.String(), "error", err)
		return Record{}, false
	}
	fresh, err := r.store.conv.ToRecord(e)
	if err != nil {
		r.logger.Warn("skipping unconvertible entry", "key", old.Key.String(), "error", err)
		return Record{}, false
	}
	return fresh, true
}

// replace writes fresh and deletes old when the key changed.
func (r *Reconciler) replace(ctx context.Context, old, fresh Record) error {
	if _, err := r.store.write(ctx, fresh); err != nil {
		return err
	}
	if fresh.Key.Equal(old.Key) {
		return nil
	}
	if _, err := r.store.remove(ctx, old.Key); err != nil {
		return err
	}
	r.logger.Info("entry re-keyed", "from", old.Key.String(), "to", fresh.Key.String())
	return nil
}

func (r *Reconciler) logRefresh(typ string, res RefreshResult) {
	r.logger.Info("refresh completed",
		"type", typ,
		"processed", res.Processed,
		"rewritten", res.Rewritten,
		"rekeyed", res.Rekeyed,
		"stopped", res.Stopped,
	)
}
