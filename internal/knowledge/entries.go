package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/project-kaizen/kaizen/internal/scopegraph"
	"go.uber.org/zap"
)

// ─── Task size ───────────────────────────────────────────────────────────────

// TaskSize is the optional effort hint on an entry, ordered XS < S < M < L < XL.
type TaskSize string

const (
	SizeXS TaskSize = "XS"
	SizeS  TaskSize = "S"
	SizeM  TaskSize = "M"
	SizeL  TaskSize = "L"
	SizeXL TaskSize = "XL"
)

// TaskSizes lists every size in ascending order.
var TaskSizes = []TaskSize{SizeXS, SizeS, SizeM, SizeL, SizeXL}

// ParseTaskSize accepts a size in any letter case. Empty means no size.
func ParseTaskSize(s string) (TaskSize, error) {
	if s == "" {
		return "", nil
	}
	t := TaskSize(strings.ToUpper(s))
	if !slices.Contains(TaskSizes, t) {
		return "", invalid("task size %q must be one of XS, S, M, L, XL", s)
	}
	return t, nil
}

// AtLeast returns t and every larger size. A search filtered by t sees
// entries sized t or bigger.
func (t TaskSize) AtLeast() []TaskSize {
	i := slices.Index(TaskSizes, t)
	if i < 0 {
		return nil
	}
	return TaskSizes[i:]
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Entry is a knowledge entry bound to one scope.
type Entry struct {
	ID           string   `json:"id" yaml:"id"`
	Scope        string   `json:"scope" yaml:"scope"`
	Content      string   `json:"content" yaml:"content"`
	Context      string   `json:"context" yaml:"context"`
	TaskSize     TaskSize `json:"task_size,omitempty" yaml:"task_size,omitempty"`
	SuppressedBy string   `json:"suppressed_by,omitempty" yaml:"suppressed_by,omitempty"`
	CreatedAt    string   `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at" yaml:"updated_at,omitempty"`
}

// EntryUpdate holds partial update fields. Nil fields are left unchanged.
type EntryUpdate struct {
	Content  *string
	Context  *string
	Scope    *string // canonical namespace:scope
	TaskSize *TaskSize
}

// ─── Entries ─────────────────────────────────────────────────────────────────

// Write stores a new entry in scope and returns its id.
func (s *Store) Write(ctx context.Context, scope, content, contextText string, size TaskSize) (string, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return "", fromMalformed(err)
	}
	if err := validateText(content, contextText); err != nil {
		return "", err
	}
	if size != "" && !slices.Contains(TaskSizes, size) {
		return "", invalid("task size %q", size)
	}

	id := uuid.NewString()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row, err := lookupScopeTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		return insertEntryTx(ctx, tx, Entry{
			ID:       id,
			Content:  content,
			Context:  contextText,
			TaskSize: size,
		}, row.id)
	})
	if err != nil {
		return "", err
	}
	s.log.Debug("knowledge written", zap.String("id", id), zap.String("scope", ref.String()))
	return id, nil
}

func insertEntryTx(ctx context.Context, tx *sql.Tx, e Entry, scopeID string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO knowledge (id, scope_id, content, context, task_size) VALUES (?, ?, ?, ?, ?)`,
		e.ID, scopeID, e.Content, e.Context, nullableString(string(e.TaskSize)),
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("knowledge %q: %w", e.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert knowledge: %w", err)
	}
	return nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	return getEntryTx(ctx, s.rdb, id)
}

func getEntryTx(ctx context.Context, q dbtx, id string) (*Entry, error) {
	var (
		e            Entry
		size         sql.NullString
		suppressedBy sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT k.id, n.name || ':' || s.name, k.content, k.context, k.task_size, k.suppressed_by,
		        k.created_at, k.updated_at
		 FROM knowledge k
		 JOIN scopes s     ON s.id = k.scope_id
		 JOIN namespaces n ON n.id = s.namespace_id
		 WHERE k.id = ?`,
		id,
	).Scan(&e.ID, &e.Scope, &e.Content, &e.Context, &size, &suppressedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("knowledge %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e.TaskSize = TaskSize(size.String)
	e.SuppressedBy = suppressedBy.String
	return &e, nil
}

// Update changes any subset of an entry's fields in a single write. The
// update timestamp is always refreshed, even when no field is given.
func (s *Store) Update(ctx context.Context, id string, u EntryUpdate) (*Entry, error) {
	var ref *scopegraph.Ref
	if u.Scope != nil {
		r, err := scopegraph.ParseRef(*u.Scope)
		if err != nil {
			return nil, fromMalformed(err)
		}
		ref = &r
	}
	if u.Content != nil && strings.TrimSpace(*u.Content) == "" {
		return nil, invalid("content must not be empty")
	}
	if u.Context != nil && strings.TrimSpace(*u.Context) == "" {
		return nil, invalid("context must not be empty")
	}
	if u.TaskSize != nil && *u.TaskSize != "" && !slices.Contains(TaskSizes, *u.TaskSize) {
		return nil, invalid("task size %q", *u.TaskSize)
	}

	var out *Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var scopeID *string
		if ref != nil {
			row, err := lookupScopeTx(ctx, tx, *ref)
			if err != nil {
				return err
			}
			scopeID = &row.id
		}

		// An explicit empty task size clears the column, so it cannot ride
		// through COALESCE; a flag column selects it instead.
		var size *string
		clearSize := false
		if u.TaskSize != nil {
			if *u.TaskSize == "" {
				clearSize = true
			} else {
				v := string(*u.TaskSize)
				size = &v
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE knowledge SET
			   content    = COALESCE(?, content),
			   context    = COALESCE(?, context),
			   scope_id   = COALESCE(?, scope_id),
			   task_size  = CASE WHEN ? THEN NULL ELSE COALESCE(?, task_size) END,
			   updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now')
			 WHERE id = ?`,
			u.Content, u.Context, scopeID, clearSize, size, id,
		)
		if err != nil {
			return fmt.Errorf("update knowledge: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("knowledge %q: %w", id, ErrNotFound)
		}
		out, err = getEntryTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("knowledge updated", zap.String("id", id))
	return out, nil
}

// Move rebinds an entry to another scope.
func (s *Store) Move(ctx context.Context, id, scope string) (*Entry, error) {
	return s.Update(ctx, id, EntryUpdate{Scope: &scope})
}

// Delete removes an entry. Entries it suppressed become active again.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM knowledge WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete knowledge: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("knowledge %q: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("knowledge deleted", zap.String("id", id))
	return nil
}

func validateText(content, contextText string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content must not be empty")
	}
	if strings.TrimSpace(contextText) == "" {
		return invalid("context must not be empty")
	}
	return nil
}
