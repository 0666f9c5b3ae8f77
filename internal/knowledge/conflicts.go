package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Resolution is the outcome of a conflict resolution.
type Resolution struct {
	ActiveID      string   `json:"active_id"`
	SuppressedIDs []string `json:"suppressed_ids"`
	Changed       int      `json:"changed"`
}

// Resolve marks every entry in suppressedIDs as superseded by activeID.
// Missing ids, active or suppressed, are reported together in one error.
// Re-running with the same arguments changes nothing. An entry already
// suppressed by another id is repointed at activeID.
func (s *Store) Resolve(ctx context.Context, activeID string, suppressedIDs []string) (*Resolution, error) {
	if len(suppressedIDs) == 0 {
		return nil, fmt.Errorf("resolve %q: %w", activeID, ErrEmptySuppressionList)
	}
	ids := dedupe(suppressedIDs)
	if slices.Contains(ids, activeID) {
		return nil, invalid("knowledge %q cannot suppress itself", activeID)
	}

	result := &Resolution{ActiveID: activeID, SuppressedIDs: ids}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var absent []string
		for _, id := range append([]string{activeID}, ids...) {
			ok, err := entryExistsTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				absent = append(absent, id)
			}
		}
		if len(absent) > 0 {
			return missing(ErrNotFound, "knowledge", absent)
		}

		args := []any{activeID}
		for _, id := range ids {
			args = append(args, id)
		}
		args = append(args, activeID)
		res, err := tx.ExecContext(ctx,
			`UPDATE knowledge
			 SET suppressed_by = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now')
			 WHERE id IN (`+placeholders(len(ids))+`)
			   AND (suppressed_by IS NULL OR suppressed_by != ?)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("suppress knowledge: %w", err)
		}
		n, _ := res.RowsAffected()
		result.Changed = int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("knowledge conflict resolved",
		zap.String("active", activeID),
		zap.Strings("suppressed", ids),
		zap.Int("changed", result.Changed),
	)
	return result, nil
}

func entryExistsTx(ctx context.Context, q dbtx, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM knowledge WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
