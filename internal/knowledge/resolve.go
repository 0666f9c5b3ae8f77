package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/project-kaizen/kaizen/internal/scopegraph"
)

// ClosureEntry is one scope visible from a start scope.
type ClosureEntry struct {
	ScopeID string `json:"scope_id"`
	Scope   string `json:"scope"`
	Level   int    `json:"level"`
}

// AncestorClosure returns the start scope (level 0) and every scope reachable
// through parent edges, each once at its minimum level, in BFS order. The
// walk runs against a single read transaction and is never cached.
func (s *Store) AncestorClosure(ctx context.Context, scope string) ([]ClosureEntry, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}

	var out []ClosureEntry
	err = s.withRead(ctx, func(tx *sql.Tx) error {
		out, err = closureTx(ctx, tx, ref)
		return err
	})
	return out, err
}

func closureTx(ctx context.Context, q dbtx, ref scopegraph.Ref) ([]ClosureEntry, error) {
	row, err := lookupScopeTx(ctx, q, ref)
	if err != nil {
		return nil, err
	}
	ancestors, err := scopegraph.AncestorClosure(row.id, parentsFunc(ctx, q))
	if err != nil {
		return nil, fmt.Errorf("ancestor closure: %w", err)
	}

	out := make([]ClosureEntry, 0, len(ancestors))
	for _, a := range ancestors {
		label, err := labelTx(ctx, q, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ClosureEntry{ScopeID: a.ID, Scope: label, Level: a.Level})
	}
	return out, nil
}
