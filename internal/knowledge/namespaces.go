package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/project-kaizen/kaizen/internal/scopegraph"
	"go.uber.org/zap"
)

const (
	globalNamespace   = scopegraph.GlobalNamespace
	globalDescription = "Knowledge shared by every project"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Namespace is a top-level container. Scopes is filled only by listings
// that ask for them.
type Namespace struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	CreatedAt   string  `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at" yaml:"updated_at,omitempty"`
	Scopes      []Scope `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// NamespaceDeletion reports what a namespace delete cascaded to.
type NamespaceDeletion struct {
	Namespace        string `json:"namespace"`
	ScopesDeleted    int    `json:"scopes_deleted"`
	KnowledgeDeleted int    `json:"knowledge_deleted"`
}

// ListStyle controls how much of the tree ListNamespaces returns.
type ListStyle string

const (
	StyleShort   ListStyle = "short"   // namespace descriptions only
	StyleLong    ListStyle = "long"    // plus scopes
	StyleDetails ListStyle = "details" // plus scope parents
)

// ParseListStyle accepts short, long or details; empty means short.
func ParseListStyle(s string) (ListStyle, error) {
	switch ListStyle(s) {
	case "", StyleShort:
		return StyleShort, nil
	case StyleLong, StyleDetails:
		return ListStyle(s), nil
	}
	return "", invalid("style %q must be short, long or details", s)
}

// ─── Namespaces ──────────────────────────────────────────────────────────────

// CreateNamespace registers a namespace and its default scope atomically.
func (s *Store) CreateNamespace(ctx context.Context, name, description string) (*Namespace, error) {
	var ns *Namespace
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ns, err = s.createNamespaceTx(ctx, tx, name, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("namespace created", zap.String("namespace", name))
	return ns, nil
}

func (s *Store) createNamespaceTx(ctx context.Context, tx *sql.Tx, name, description string) (*Namespace, error) {
	if err := scopegraph.ValidateName(name); err != nil {
		return nil, fromMalformed(err)
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO namespaces (name, description) VALUES (?, ?)`,
		name, description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("namespace %q: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert namespace: %w", err)
	}
	nsID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := insertScopeTx(ctx, tx, nsID, scopegraph.DefaultScope, "Default scope for "+name); err != nil {
		return nil, fmt.Errorf("create default scope: %w", err)
	}
	return getNamespaceTx(ctx, tx, name)
}

// GetNamespace returns one namespace without its scopes.
func (s *Store) GetNamespace(ctx context.Context, name string) (*Namespace, error) {
	return getNamespaceTx(ctx, s.rdb, name)
}

func getNamespaceTx(ctx context.Context, q dbtx, name string) (*Namespace, error) {
	var ns Namespace
	err := q.QueryRowContext(ctx,
		`SELECT name, description, created_at, updated_at FROM namespaces WHERE name = ?`, name,
	).Scan(&ns.Name, &ns.Description, &ns.CreatedAt, &ns.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("namespace %q: %w", name, ErrNamespaceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ns, nil
}

// NamespaceUpdate holds partial update fields for a namespace. Nil fields
// are left unchanged.
type NamespaceUpdate struct {
	Name        *string
	Description *string
}

// RenameNamespace changes a namespace's name. Scope ids are untouched, so
// everything bound to them follows the rename.
func (s *Store) RenameNamespace(ctx context.Context, oldName, newName string) (*Namespace, error) {
	return s.UpdateNamespace(ctx, oldName, NamespaceUpdate{Name: &newName})
}

// UpdateNamespaceDescription replaces a namespace's description.
func (s *Store) UpdateNamespaceDescription(ctx context.Context, name, description string) (*Namespace, error) {
	return s.UpdateNamespace(ctx, name, NamespaceUpdate{Description: &description})
}

// UpdateNamespace applies a rename and/or a description change as one unit.
// The global namespace cannot be changed.
func (s *Store) UpdateNamespace(ctx context.Context, name string, u NamespaceUpdate) (*Namespace, error) {
	if name == globalNamespace {
		return nil, fmt.Errorf("update namespace %q: %w", name, ErrReserved)
	}
	if u.Name != nil {
		if err := scopegraph.ValidateName(*u.Name); err != nil {
			return nil, fromMalformed(err)
		}
	}
	if u.Description != nil {
		if err := validateDescription(*u.Description); err != nil {
			return nil, err
		}
	}

	current := name
	var ns *Namespace
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getNamespaceTx(ctx, tx, name); err != nil {
			return err
		}
		if u.Name != nil && *u.Name != name {
			if _, err := tx.ExecContext(ctx,
				`UPDATE namespaces SET name = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE name = ?`,
				*u.Name, name,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("namespace %q: %w", *u.Name, ErrAlreadyExists)
				}
				return fmt.Errorf("rename namespace: %w", err)
			}
			current = *u.Name
		}
		if u.Description != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE namespaces SET description = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE name = ?`,
				*u.Description, current,
			); err != nil {
				return fmt.Errorf("update namespace: %w", err)
			}
		}
		var err error
		ns, err = getNamespaceTx(ctx, tx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("namespace updated", zap.String("namespace", name), zap.String("now", current))
	return ns, nil
}

// DeleteNamespace removes a namespace and cascades to its scopes, their
// parent edges and their knowledge.
func (s *Store) DeleteNamespace(ctx context.Context, name string) (*NamespaceDeletion, error) {
	if name == globalNamespace {
		return nil, fmt.Errorf("delete namespace %q: %w", name, ErrReserved)
	}

	result := &NamespaceDeletion{Namespace: name}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var nsID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM namespaces WHERE name = ?`, name).Scan(&nsID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("namespace %q: %w", name, ErrNamespaceNotFound)
		}
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT
			   (SELECT COUNT(*) FROM scopes WHERE namespace_id = ?),
			   (SELECT COUNT(*) FROM knowledge k JOIN scopes s ON s.id = k.scope_id WHERE s.namespace_id = ?)`,
			nsID, nsID,
		).Scan(&result.ScopesDeleted, &result.KnowledgeDeleted); err != nil {
			return fmt.Errorf("count namespace contents: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, nsID); err != nil {
			return fmt.Errorf("delete namespace: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("namespace deleted",
		zap.String("namespace", name),
		zap.Int("scopes_deleted", result.ScopesDeleted),
		zap.Int("knowledge_deleted", result.KnowledgeDeleted),
	)
	return result, nil
}

// ListNamespaces returns namespaces ordered by name. A non-empty filter
// restricts the listing to that namespace and fails if it does not exist.
// Every namespace, scope and parent set comes from one read snapshot.
func (s *Store) ListNamespaces(ctx context.Context, filter string, style ListStyle) ([]Namespace, error) {
	var out []Namespace
	err := s.withRead(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = listNamespacesTx(ctx, tx, filter, style)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listNamespacesTx(ctx context.Context, q dbtx, filter string, style ListStyle) ([]Namespace, error) {
	query := `SELECT name, description, created_at, updated_at FROM namespaces`
	var args []any
	if filter != "" {
		query += ` WHERE name = ?`
		args = append(args, filter)
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	var out []Namespace
	for rows.Next() {
		var ns Namespace
		if err := rows.Scan(&ns.Name, &ns.Description, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, ns)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter != "" && len(out) == 0 {
		return nil, fmt.Errorf("namespace %q: %w", filter, ErrNamespaceNotFound)
	}

	if style == StyleShort || style == "" {
		return out, nil
	}
	for i := range out {
		scopes, err := listScopesTx(ctx, q, out[i].Name)
		if err != nil {
			return nil, err
		}
		if style != StyleDetails {
			for j := range scopes {
				scopes[j].Parents = nil
			}
		}
		out[i].Scopes = scopes
	}
	return out, nil
}

func validateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return invalid("description must not be empty")
	}
	return nil
}
