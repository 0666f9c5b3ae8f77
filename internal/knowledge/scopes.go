package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/project-kaizen/kaizen/internal/scopegraph"
	"go.uber.org/zap"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Scope is a node of the inheritance graph. Parents holds canonical
// namespace:scope labels sorted alphabetically.
type Scope struct {
	ID          string   `json:"id" yaml:"id"`
	Namespace   string   `json:"namespace" yaml:"namespace"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Parents     []string `json:"parents,omitempty" yaml:"parents,omitempty"`
	CreatedAt   string   `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at" yaml:"updated_at,omitempty"`
}

// Label returns the canonical namespace:scope address.
func (s Scope) Label() string {
	return s.Namespace + ":" + s.Name
}

// ScopeUpdate holds partial update fields for a scope. Nil fields are left
// unchanged. A non-nil Parents replaces the whole parent set.
type ScopeUpdate struct {
	Name        *string   // canonical namespace:scope; the namespace must not change
	Description *string
	Parents     *[]string // canonical parent addresses
}

// ScopeDeletion reports what a scope delete cascaded to.
type ScopeDeletion struct {
	Scope            string `json:"scope"`
	KnowledgeDeleted int    `json:"knowledge_deleted"`
}

// scopeRow is the identity of a stored scope.
type scopeRow struct {
	id          string
	namespaceID int64
	ref         scopegraph.Ref
}

// ─── Scopes ──────────────────────────────────────────────────────────────────

// CreateScope adds a scope to an existing namespace. The namespace default
// scope is appended to the parents when missing. A new scope has no
// incoming edges, so creation cannot close a cycle.
func (s *Store) CreateScope(ctx context.Context, scope, description string, parents []string) (*Scope, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}
	parentRefs, err := scopegraph.ParseRefs(parents)
	if err != nil {
		return nil, fromMalformed(err)
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	var out *Scope
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		nsID, err := namespaceIDTx(ctx, tx, ref.Namespace)
		if err != nil {
			return err
		}
		parentIDs, err := resolveParentsTx(ctx, tx, scopegraph.EnsureDefaultParent(ref, parentRefs))
		if err != nil {
			return err
		}
		id, err := insertScopeTx(ctx, tx, nsID, ref.Scope, description)
		if err != nil {
			return err
		}
		if err := insertEdgesTx(ctx, tx, id, parentIDs); err != nil {
			return err
		}
		out, err = loadScopeTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scope created", zap.String("scope", ref.String()), zap.Strings("parents", out.Parents))
	return out, nil
}

// GetScope returns a scope with its parents.
func (s *Store) GetScope(ctx context.Context, scope string) (*Scope, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}
	var out *Scope
	err = s.withRead(ctx, func(tx *sql.Tx) error {
		row, err := lookupScopeTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		out, err = loadScopeTx(ctx, tx, row.id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListScopes returns every scope of a namespace ordered by name.
func (s *Store) ListScopes(ctx context.Context, namespace string) ([]Scope, error) {
	var out []Scope
	err := s.withRead(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = listScopesTx(ctx, tx, namespace)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listScopesTx(ctx context.Context, q dbtx, namespace string) ([]Scope, error) {
	nsID, err := namespaceIDTx(ctx, q, namespace)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id FROM scopes WHERE namespace_id = ? ORDER BY name`, nsID)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}

	out := make([]Scope, 0, len(ids))
	for _, id := range ids {
		sc, err := loadScopeTx(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, nil
}

// UpdateScope renames a scope within its namespace, changes its
// description and/or replaces its parent set. All checks run before any
// write and the whole update commits as one unit.
func (s *Store) UpdateScope(ctx context.Context, scope string, u ScopeUpdate) (*Scope, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}

	var newRef *scopegraph.Ref
	if u.Name != nil {
		r, err := scopegraph.ParseRef(*u.Name)
		if err != nil {
			return nil, fromMalformed(err)
		}
		if r.Namespace != ref.Namespace {
			return nil, fmt.Errorf("rename %s to %s: %w", ref, r, ErrCrossNamespaceMove)
		}
		if ref.IsDefault() && r != ref {
			return nil, fmt.Errorf("rename %s: %w", ref, ErrDefaultScopeProtected)
		}
		newRef = &r
	}
	if u.Description != nil {
		if err := validateDescription(*u.Description); err != nil {
			return nil, err
		}
	}
	var parentRefs []scopegraph.Ref
	if u.Parents != nil {
		parentRefs, err = scopegraph.ParseRefs(*u.Parents)
		if err != nil {
			return nil, fromMalformed(err)
		}
	}

	var out *Scope
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row, err := lookupScopeTx(ctx, tx, ref)
		if err != nil {
			return err
		}

		var proposed []string
		if u.Parents != nil {
			proposed, err = resolveParentsTx(ctx, tx, scopegraph.EnsureDefaultParent(ref, parentRefs))
			if err != nil {
				return err
			}
			current, err := parentIDsTx(ctx, tx, row.id)
			if err != nil {
				return err
			}
			if err := checkAcyclicTx(ctx, tx, row, current, proposed); err != nil {
				return err
			}
		}

		if newRef != nil && *newRef != ref {
			if _, err := tx.ExecContext(ctx,
				`UPDATE scopes SET name = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE id = ?`,
				newRef.Scope, row.id,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("scope %s: %w", newRef, ErrAlreadyExists)
				}
				return fmt.Errorf("rename scope: %w", err)
			}
		}
		if u.Description != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE scopes SET description = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE id = ?`,
				*u.Description, row.id,
			); err != nil {
				return fmt.Errorf("update scope description: %w", err)
			}
		}
		if u.Parents != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM scope_parents WHERE child_id = ?`, row.id); err != nil {
				return fmt.Errorf("clear parents: %w", err)
			}
			if err := insertEdgesTx(ctx, tx, row.id, proposed); err != nil {
				return err
			}
		}

		out, err = loadScopeTx(ctx, tx, row.id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scope updated", zap.String("scope", ref.String()), zap.String("now", out.Label()))
	return out, nil
}

// DeleteScope removes a scope and the knowledge bound to it. Children lose
// the edge to it and keep their other parents.
func (s *Store) DeleteScope(ctx context.Context, scope string) (*ScopeDeletion, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}
	if ref.IsDefault() {
		return nil, fmt.Errorf("delete %s: %w", ref, ErrDefaultScopeProtected)
	}

	result := &ScopeDeletion{Scope: ref.String()}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row, err := lookupScopeTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM knowledge WHERE scope_id = ?`, row.id,
		).Scan(&result.KnowledgeDeleted); err != nil {
			return fmt.Errorf("count scope knowledge: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scopes WHERE id = ?`, row.id); err != nil {
			return fmt.Errorf("delete scope: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("scope deleted", zap.String("scope", result.Scope), zap.Int("knowledge_deleted", result.KnowledgeDeleted))
	return result, nil
}

// AddParents adds edges from scope to each listed parent. Edges that
// already exist are skipped. A batch that contains a missing parent, a
// self reference or an edge closing a cycle adds nothing.
func (s *Store) AddParents(ctx context.Context, scope string, parents []string) (*Scope, error) {
	ref, parentRefs, err := parseEdgeBatch(scope, parents)
	if err != nil {
		return nil, err
	}

	var out *Scope
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row, err := addParentsTx(ctx, tx, ref, parentRefs)
		if err != nil {
			return err
		}
		out, err = loadScopeTx(ctx, tx, row.id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scope parents added", zap.String("scope", ref.String()), zap.Strings("parents", parents))
	return out, nil
}

// RemoveParents removes the listed edges. Every listed parent must be a
// current edge of scope or nothing is removed. The namespace default edge
// is kept for non-default scopes.
func (s *Store) RemoveParents(ctx context.Context, scope string, parents []string) (*Scope, error) {
	ref, parentRefs, err := parseEdgeBatch(scope, parents)
	if err != nil {
		return nil, err
	}

	var out *Scope
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row, err := lookupScopeTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		current, err := parentIDsTx(ctx, tx, row.id)
		if err != nil {
			return err
		}

		var absent []string
		var remove []string
		for _, p := range parentRefs {
			pr, err := lookupScopeTx(ctx, tx, p)
			if errors.Is(err, ErrScopeNotFound) || (err == nil && !slices.Contains(current, pr.id)) {
				absent = append(absent, p.String())
				continue
			}
			if err != nil {
				return err
			}
			if !ref.IsDefault() && p == ref.DefaultOf() {
				continue
			}
			remove = append(remove, pr.id)
		}
		if len(absent) > 0 {
			return missing(ErrParentNotFound, "parents of "+ref.String(), absent)
		}

		for _, id := range remove {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM scope_parents WHERE child_id = ? AND parent_id = ?`, row.id, id,
			); err != nil {
				return fmt.Errorf("remove parent: %w", err)
			}
		}
		out, err = loadScopeTx(ctx, tx, row.id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scope parents removed", zap.String("scope", ref.String()), zap.Strings("parents", parents))
	return out, nil
}

// ─── Graph helpers ───────────────────────────────────────────────────────────

// addParentsTx adds the edges in refs that ref does not have yet, plus the
// namespace default edge, after checking the whole batch for cycles.
func addParentsTx(ctx context.Context, tx *sql.Tx, ref scopegraph.Ref, refs []scopegraph.Ref) (*scopeRow, error) {
	row, err := lookupScopeTx(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	requested, err := resolveParentsTx(ctx, tx, scopegraph.EnsureDefaultParent(ref, refs))
	if err != nil {
		return nil, err
	}
	current, err := parentIDsTx(ctx, tx, row.id)
	if err != nil {
		return nil, err
	}

	proposed := slices.Clone(current)
	for _, id := range requested {
		if !slices.Contains(proposed, id) {
			proposed = append(proposed, id)
		}
	}
	if err := checkAcyclicTx(ctx, tx, row, current, proposed); err != nil {
		return nil, err
	}
	if err := insertEdgesTx(ctx, tx, row.id, proposed[len(current):]); err != nil {
		return nil, err
	}
	return row, nil
}

func parseEdgeBatch(scope string, parents []string) (scopegraph.Ref, []scopegraph.Ref, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return scopegraph.Ref{}, nil, fromMalformed(err)
	}
	if len(parents) == 0 {
		return scopegraph.Ref{}, nil, invalid("parent list must not be empty")
	}
	refs, err := scopegraph.ParseRefs(parents)
	if err != nil {
		return scopegraph.Ref{}, nil, fromMalformed(err)
	}
	return ref, refs, nil
}

// checkAcyclicTx validates the edges proposed adds on top of current
// against the graph as it would look after the write.
func checkAcyclicTx(ctx context.Context, tx *sql.Tx, row *scopeRow, current, proposed []string) error {
	var added []string
	for _, id := range proposed {
		if !slices.Contains(current, id) {
			added = append(added, id)
		}
	}
	walk := scopegraph.Overlay(parentsFunc(ctx, tx), row.id, proposed)
	bad, err := scopegraph.FindCycle(row.id, added, walk)
	if err != nil {
		return fmt.Errorf("cycle check: %w", err)
	}
	if bad == "" {
		return nil
	}
	label, err := labelTx(ctx, tx, bad)
	if err != nil {
		return err
	}
	if bad == row.id {
		return fmt.Errorf("%s cannot be its own parent: %w", row.ref, ErrCircularReference)
	}
	return fmt.Errorf("%s -> %s would close a cycle: %w", row.ref, label, ErrCircularReference)
}

// parentsFunc reads committed edges (plus anything written earlier in tx),
// ordered by the parent's canonical label.
func parentsFunc(ctx context.Context, q dbtx) scopegraph.ParentsFunc {
	return func(id string) ([]string, error) {
		return parentIDsTx(ctx, q, id)
	}
}

func parentIDsTx(ctx context.Context, q dbtx, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT sp.parent_id
		 FROM scope_parents sp
		 JOIN scopes s     ON s.id = sp.parent_id
		 JOIN namespaces n ON n.id = s.namespace_id
		 WHERE sp.child_id = ?
		 ORDER BY n.name, s.name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query parents: %w", err)
	}
	return scanStrings(rows)
}

func namespaceIDTx(ctx context.Context, q dbtx, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM namespaces WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("namespace %q: %w", name, ErrNamespaceNotFound)
	}
	return id, err
}

func lookupScopeTx(ctx context.Context, q dbtx, ref scopegraph.Ref) (*scopeRow, error) {
	row := scopeRow{ref: ref}
	err := q.QueryRowContext(ctx,
		`SELECT s.id, s.namespace_id
		 FROM scopes s
		 JOIN namespaces n ON n.id = s.namespace_id
		 WHERE n.name = ? AND s.name = ?`,
		ref.Namespace, ref.Scope,
	).Scan(&row.id, &row.namespaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scope %s: %w", ref, ErrScopeNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// resolveParentsTx maps parent refs to ids, reporting every missing one.
func resolveParentsTx(ctx context.Context, tx *sql.Tx, refs []scopegraph.Ref) ([]string, error) {
	ids := make([]string, 0, len(refs))
	var absent []string
	for _, r := range refs {
		row, err := lookupScopeTx(ctx, tx, r)
		if errors.Is(err, ErrScopeNotFound) {
			absent = append(absent, r.String())
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, row.id)
	}
	if len(absent) > 0 {
		return nil, missing(ErrParentNotFound, "parent scopes", absent)
	}
	return ids, nil
}

func insertScopeTx(ctx context.Context, tx *sql.Tx, namespaceID int64, name, description string) (string, error) {
	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scopes (id, namespace_id, name, description) VALUES (?, ?, ?, ?)`,
		id, namespaceID, name, description,
	); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("scope %q: %w", name, ErrAlreadyExists)
		}
		return "", fmt.Errorf("insert scope: %w", err)
	}
	return id, nil
}

func insertEdgesTx(ctx context.Context, tx *sql.Tx, child string, parents []string) error {
	for _, p := range parents {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO scope_parents (child_id, parent_id) VALUES (?, ?)`,
			child, p,
		); err != nil {
			return fmt.Errorf("insert parent edge: %w", err)
		}
	}
	return nil
}

func loadScopeTx(ctx context.Context, q dbtx, id string) (*Scope, error) {
	var sc Scope
	err := q.QueryRowContext(ctx,
		`SELECT s.id, n.name, s.name, s.description, s.created_at, s.updated_at
		 FROM scopes s
		 JOIN namespaces n ON n.id = s.namespace_id
		 WHERE s.id = ?`,
		id,
	).Scan(&sc.ID, &sc.Namespace, &sc.Name, &sc.Description, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scope id %q: %w", id, ErrScopeNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT n.name || ':' || s.name AS label
		 FROM scope_parents sp
		 JOIN scopes s     ON s.id = sp.parent_id
		 JOIN namespaces n ON n.id = s.namespace_id
		 WHERE sp.child_id = ?
		 ORDER BY label`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query parent labels: %w", err)
	}
	if sc.Parents, err = scanStrings(rows); err != nil {
		return nil, err
	}
	return &sc, nil
}

func labelTx(ctx context.Context, q dbtx, id string) (string, error) {
	var label string
	err := q.QueryRowContext(ctx,
		`SELECT n.name || ':' || s.name FROM scopes s JOIN namespaces n ON n.id = s.namespace_id WHERE s.id = ?`,
		id,
	).Scan(&label)
	if err != nil {
		return "", fmt.Errorf("scope label %q: %w", id, err)
	}
	return label, nil
}

// scanStrings drains a single-column result set and closes it.
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
