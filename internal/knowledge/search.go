package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/project-kaizen/kaizen/internal/scopegraph"
	"go.uber.org/zap"
)

// SearchHit is one ranked match.
type SearchHit struct {
	ID       string   `json:"id"`
	Scope    string   `json:"scope"` // the scope the entry is bound to
	Content  string   `json:"content"`
	Context  string   `json:"context"`
	TaskSize TaskSize `json:"task_size,omitempty"`
	Score    float64  `json:"score"`
}

// Search resolves scope's ancestor closure and ranks the active entries
// bound to it. Both steps share one read snapshot.
func (s *Store) Search(ctx context.Context, queries []string, scope string, size TaskSize) ([]SearchHit, error) {
	ref, err := scopegraph.ParseRef(scope)
	if err != nil {
		return nil, fromMalformed(err)
	}

	var hits []SearchHit
	err = s.withRead(ctx, func(tx *sql.Tx) error {
		closure, err := closureTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		ids := make([]string, len(closure))
		for i, c := range closure {
			ids[i] = c.ScopeID
		}
		hits, err = searchSetTx(ctx, tx, queries, ids, size)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("knowledge searched",
		zap.String("scope", ref.String()),
		zap.Strings("queries", queries),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// searchSetTx ranks the active entries bound to any of scopeIDs against
// queries. Queries are OR-ed; the terms inside one query are AND-ed. With a
// task size, only entries of that size or larger match. Results are ordered
// by score, then most recently updated, then most recently inserted, and
// capped by the search.max_results setting.
func searchSetTx(ctx context.Context, tx *sql.Tx, queries []string, scopeIDs []string, size TaskSize) ([]SearchHit, error) {
	match := buildMatch(queries)
	if match == "" {
		return nil, invalid("at least one non-empty query is required")
	}
	if size != "" && size.AtLeast() == nil {
		return nil, invalid("task size %q", size)
	}
	if len(scopeIDs) == 0 {
		return nil, nil
	}

	p, err := searchParamsTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	sqlStr := `
		SELECT k.id, n.name || ':' || s.name, k.content, k.context, ifnull(k.task_size, ''),
		       -bm25(knowledge_fts, ?, ?) AS score
		FROM knowledge_fts fts
		JOIN knowledge k  ON k.seq = fts.rowid
		JOIN scopes s     ON s.id = k.scope_id
		JOIN namespaces n ON n.id = s.namespace_id
		WHERE knowledge_fts MATCH ?
		  AND k.suppressed_by IS NULL
		  AND k.scope_id IN (` + placeholders(len(scopeIDs)) + `)`
	args := []any{p.contentWeight, p.contextWeight, match}
	for _, id := range scopeIDs {
		args = append(args, id)
	}

	if size != "" {
		sizes := size.AtLeast()
		sqlStr += ` AND k.task_size IN (` + placeholders(len(sizes)) + `)`
		for _, sz := range sizes {
			args = append(args, string(sz))
		}
	}

	sqlStr += ` ORDER BY score DESC, k.updated_at DESC, k.seq DESC LIMIT ?`
	args = append(args, p.maxResults)

	rows, err := tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var sz string
		if err := rows.Scan(&h.ID, &h.Scope, &h.Content, &h.Context, &sz, &h.Score); err != nil {
			return nil, err
		}
		h.TaskSize = TaskSize(sz)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GroupByScope arranges hits as scope label -> entry id -> content. An empty
// input gives a nil map.
func GroupByScope(hits []SearchHit) map[string]map[string]string {
	if len(hits) == 0 {
		return nil
	}
	out := make(map[string]map[string]string)
	for _, h := range hits {
		if out[h.Scope] == nil {
			out[h.Scope] = make(map[string]string)
		}
		out[h.Scope][h.ID] = h.Content
	}
	return out
}

// buildMatch turns queries into one FTS5 expression. Every term is quoted so
// user text never reaches the FTS5 query grammar.
func buildMatch(queries []string) string {
	var groups []string
	for _, q := range queries {
		if terms := quoteTerms(q); terms != "" {
			groups = append(groups, "("+terms+")")
		}
	}
	return strings.Join(groups, " OR ")
}

// quoteTerms splits on the same boundary as the unicode61 tokenizer, any
// rune that is not a letter or digit, so "alpha/logging" is two terms.
func quoteTerms(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
