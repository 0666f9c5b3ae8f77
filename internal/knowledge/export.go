package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/project-kaizen/kaizen/internal/scopegraph"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SnapshotVersion is written into every export.
const SnapshotVersion = 1

// Snapshot is a portable copy of the whole knowledge graph.
type Snapshot struct {
	Version    int         `yaml:"version"`
	ExportedAt string      `yaml:"exported_at,omitempty"`
	Namespaces []Namespace `yaml:"namespaces"`
	Knowledge  []Entry     `yaml:"knowledge,omitempty"`
}

// ImportResult counts what an import created and skipped.
type ImportResult struct {
	NamespacesCreated int `json:"namespaces_created"`
	ScopesCreated     int `json:"scopes_created"`
	KnowledgeCreated  int `json:"knowledge_created"`
	KnowledgeSkipped  int `json:"knowledge_skipped"`
}

// ─── Export ──────────────────────────────────────────────────────────────────

// Export reads every namespace, scope and entry in one snapshot.
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion}
	err := s.withRead(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`).Scan(&snap.ExportedAt); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT name, description, created_at, updated_at FROM namespaces ORDER BY name`)
		if err != nil {
			return fmt.Errorf("export namespaces: %w", err)
		}
		for rows.Next() {
			var ns Namespace
			if err := rows.Scan(&ns.Name, &ns.Description, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
				_ = rows.Close()
				return err
			}
			snap.Namespaces = append(snap.Namespaces, ns)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range snap.Namespaces {
			rows, err := tx.QueryContext(ctx,
				`SELECT s.id FROM scopes s JOIN namespaces n ON n.id = s.namespace_id WHERE n.name = ? ORDER BY s.name`,
				snap.Namespaces[i].Name,
			)
			if err != nil {
				return fmt.Errorf("export scopes: %w", err)
			}
			ids, err := scanStrings(rows)
			if err != nil {
				return err
			}
			for _, id := range ids {
				sc, err := loadScopeTx(ctx, tx, id)
				if err != nil {
					return err
				}
				snap.Namespaces[i].Scopes = append(snap.Namespaces[i].Scopes, *sc)
			}
		}

		rows, err = tx.QueryContext(ctx, `SELECT id FROM knowledge ORDER BY seq`)
		if err != nil {
			return fmt.Errorf("export knowledge: %w", err)
		}
		ids, err := scanStrings(rows)
		if err != nil {
			return err
		}
		for _, id := range ids {
			e, err := getEntryTx(ctx, tx, id)
			if err != nil {
				return err
			}
			snap.Knowledge = append(snap.Knowledge, *e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// WriteYAML encodes the snapshot.
func (snap *Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot decodes a YAML snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", ErrInvalidFormat, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, invalid("snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}
	return &snap, nil
}

// ─── Import ──────────────────────────────────────────────────────────────────

// Import merges a snapshot into the store in one transaction. Existing
// namespaces are reused, existing scopes keep their stored parents and
// entries whose id already exists are skipped. New parent edges pass the
// same default-parent and cycle checks as AddParents, and any failure
// leaves the store untouched.
func (s *Store) Import(ctx context.Context, snap *Snapshot) (*ImportResult, error) {
	result := &ImportResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created := map[scopegraph.Ref]bool{}

		for _, ns := range snap.Namespaces {
			if _, err := getNamespaceTx(ctx, tx, ns.Name); errors.Is(err, ErrNamespaceNotFound) {
				if _, err := s.createNamespaceTx(ctx, tx, ns.Name, ns.Description); err != nil {
					return err
				}
				result.NamespacesCreated++
				created[scopegraph.Ref{Namespace: ns.Name, Scope: scopegraph.DefaultScope}] = true
			} else if err != nil {
				return err
			}
			nsID, err := namespaceIDTx(ctx, tx, ns.Name)
			if err != nil {
				return err
			}

			for _, sc := range ns.Scopes {
				ref := scopegraph.Ref{Namespace: ns.Name, Scope: sc.Name}
				if err := scopegraph.ValidateName(sc.Name); err != nil {
					return fromMalformed(err)
				}
				if ref.IsDefault() {
					continue
				}
				if _, err := lookupScopeTx(ctx, tx, ref); err == nil {
					continue
				} else if !errors.Is(err, ErrScopeNotFound) {
					return err
				}
				if err := validateDescription(sc.Description); err != nil {
					return fmt.Errorf("scope %s: %w", ref, err)
				}
				if _, err := insertScopeTx(ctx, tx, nsID, sc.Name, sc.Description); err != nil {
					return err
				}
				created[ref] = true
				result.ScopesCreated++
			}
		}

		// Edges go in after every node exists so parents may point forward.
		for _, ns := range snap.Namespaces {
			for _, sc := range ns.Scopes {
				ref := scopegraph.Ref{Namespace: ns.Name, Scope: sc.Name}
				if !created[ref] {
					continue
				}
				refs, err := scopegraph.ParseRefs(sc.Parents)
				if err != nil {
					return fromMalformed(err)
				}
				if _, err := addParentsTx(ctx, tx, ref, refs); err != nil {
					return err
				}
			}
		}

		var suppressions []Entry
		for _, e := range snap.Knowledge {
			if e.ID == "" {
				return invalid("knowledge entry in %s has no id", e.Scope)
			}
			ok, err := entryExistsTx(ctx, tx, e.ID)
			if err != nil {
				return err
			}
			if ok {
				result.KnowledgeSkipped++
				continue
			}
			ref, err := scopegraph.ParseRef(e.Scope)
			if err != nil {
				return fromMalformed(err)
			}
			if err := validateText(e.Content, e.Context); err != nil {
				return fmt.Errorf("knowledge %q: %w", e.ID, err)
			}
			if e.TaskSize, err = ParseTaskSize(string(e.TaskSize)); err != nil {
				return fmt.Errorf("knowledge %q: %w", e.ID, err)
			}
			row, err := lookupScopeTx(ctx, tx, ref)
			if err != nil {
				return err
			}
			if err := insertEntryTx(ctx, tx, e, row.id); err != nil {
				return err
			}
			result.KnowledgeCreated++
			if e.SuppressedBy != "" {
				suppressions = append(suppressions, e)
			}
		}

		for _, e := range suppressions {
			if _, err := tx.ExecContext(ctx,
				`UPDATE knowledge SET suppressed_by = ? WHERE id = ? AND EXISTS (SELECT 1 FROM knowledge WHERE id = ?)`,
				e.SuppressedBy, e.ID, e.SuppressedBy,
			); err != nil {
				return fmt.Errorf("restore suppression: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("snapshot imported",
		zap.Int("namespaces", result.NamespacesCreated),
		zap.Int("scopes", result.ScopesCreated),
		zap.Int("knowledge", result.KnowledgeCreated),
		zap.Int("skipped", result.KnowledgeSkipped),
	)
	return result, nil
}
