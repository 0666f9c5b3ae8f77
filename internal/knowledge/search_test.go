package knowledge_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// ─── Closure ────────────────────────────────────────────────────────────────

func TestAncestorClosure_ContainsNamespaceDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	mustScope(t, s, "proj:a")
	mustScope(t, s, "proj:b", "proj:a")

	closure, err := s.AncestorClosure(ctx, "proj:b")
	require.NoError(t, err)

	got := map[string]int{}
	for _, c := range closure {
		got[c.Scope] = c.Level
	}
	want := map[string]int{"proj:b": 0, "proj:a": 1, "proj:default": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure levels (-want +got):\n%s", diff)
	}

	_, err = s.AncestorClosure(ctx, "proj:nope")
	assert.ErrorIs(t, err, knowledge.ErrScopeNotFound)
}

func TestAncestorClosure_Diamond(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "dia")
	mustScope(t, s, "dia:top")
	mustScope(t, s, "dia:left", "dia:top")
	mustScope(t, s, "dia:right", "dia:top")
	mustScope(t, s, "dia:bottom", "dia:left", "dia:right")

	closure, err := s.AncestorClosure(ctx, "dia:bottom")
	require.NoError(t, err)

	count := 0
	for _, c := range closure {
		if c.Scope == "dia:top" {
			count++
			assert.Equal(t, 2, c.Level)
		}
	}
	assert.Equal(t, 1, count, "diamond apex must appear exactly once")
	assert.Len(t, closure, 5)
	assert.Equal(t, "dia:bottom", closure[0].Scope)
}

// ─── Search ─────────────────────────────────────────────────────────────────

func TestSearch_InheritsFromAncestors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	mustNamespace(t, s, "java")
	mustScope(t, s, "proj:api", "java:default")

	inherited := mustWrite(t, s, "java:default", "use records for immutable data", "java style", "")
	local := mustWrite(t, s, "proj:api", "immutable request dto", "api layer", "")
	mustWrite(t, s, "proj:default", "unrelated deployment note", "ops", "")

	// Sibling knowledge is not visible.
	mustScope(t, s, "proj:web")
	mustWrite(t, s, "proj:web", "immutable css tokens", "web", "")

	hits, err := s.Search(ctx, []string{"immutable"}, "proj:api", "")
	require.NoError(t, err)

	grouped := knowledge.GroupByScope(hits)
	want := map[string]map[string]string{
		"java:default": {inherited: "use records for immutable data"},
		"proj:api":     {local: "immutable request dto"},
	}
	if diff := cmp.Diff(want, grouped); diff != "" {
		t.Errorf("grouped results (-want +got):\n%s", diff)
	}
}

func TestSearch_QueriesAreOred(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	mustWrite(t, s, "proj:default", "postgres connection pooling", "db", "")
	mustWrite(t, s, "proj:default", "redis cache eviction", "cache", "")
	mustWrite(t, s, "proj:default", "postgres vacuum schedule", "db", "")

	hits, err := s.Search(ctx, []string{"postgres pooling", "redis"}, "proj:default", "")
	require.NoError(t, err)
	assert.Len(t, hits, 2, "terms inside one query are AND-ed")

	hits, err = s.Search(ctx, []string{"kubernetes"}, "proj:default", "")
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Nil(t, knowledge.GroupByScope(hits))

	_, err = s.Search(ctx, []string{"  ", ""}, "proj:default", "")
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat)
}

func TestSearch_QuotesFTSSyntax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	mustWrite(t, s, "proj:default", "error handling with wrap", "go", "")

	hits, err := s.Search(ctx, []string{`error AND "wrap" NOT`}, "proj:default", "")
	require.NoError(t, err)
	// "AND" and "NOT" become literal terms that match nothing.
	assert.Empty(t, hits)

	hits, err = s.Search(ctx, []string{`"error" wrap*`}, "proj:default", "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_PunctuationSplitsTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	id := mustWrite(t, s, "proj:default", "alpha rule for logging", "conventions", "")
	mustWrite(t, s, "proj:default", "alpha release notes", "changelog", "")

	for _, q := range []string{"alpha/logging", "alpha-logging", "alpha.logging", "logging, alpha"} {
		hits, err := s.Search(ctx, []string{q}, "proj:default", "")
		require.NoError(t, err, q)
		require.Len(t, hits, 1, q)
		assert.Equal(t, id, hits[0].ID, q)
	}

	_, err := s.Search(ctx, []string{"/// --"}, "proj:default", "")
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat, "punctuation alone is no query")
}

func TestSearch_ContentOutranksContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	inContext := mustWrite(t, s, "proj:default", "background note", "logging conventions", "")
	inContent := mustWrite(t, s, "proj:default", "logging conventions", "background note", "")
	// Filler keeps the term rare enough for a positive IDF.
	for i := 0; i < 4; i++ {
		mustWrite(t, s, "proj:default", "unrelated filler", "misc", "")
	}

	hits, err := s.Search(ctx, []string{"logging"}, "proj:default", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, inContent, hits[0].ID)
	assert.Equal(t, inContext, hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	// Flip the weights through settings.
	_, err = s.UpdateSetting(ctx, knowledge.SettingContentWeight, "0.1")
	require.NoError(t, err)
	_, err = s.UpdateSetting(ctx, knowledge.SettingContextWeight, "5")
	require.NoError(t, err)

	hits, err = s.Search(ctx, []string{"logging"}, "proj:default", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, inContext, hits[0].ID)
}

func TestSearch_TiesBreakByRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	first := mustWrite(t, s, "proj:default", "retry policy", "net", "")
	second := mustWrite(t, s, "proj:default", "retry policy", "net", "")

	hits, err := s.Search(ctx, []string{"retry"}, "proj:default", "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, second, hits[0].ID)

	// Touching the older entry moves it to the front.
	_, err = s.DB().Exec(`UPDATE knowledge SET updated_at = '2000-01-01 00:00:00.000'`)
	require.NoError(t, err)
	_, err = s.Update(ctx, first, knowledge.EntryUpdate{})
	require.NoError(t, err)
	hits, err = s.Search(ctx, []string{"retry"}, "proj:default", "")
	require.NoError(t, err)
	assert.Equal(t, first, hits[0].ID)
}

func TestSearch_MaxResultsSetting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	for i := 0; i < 5; i++ {
		mustWrite(t, s, "proj:default", "lint rule", "ci", "")
	}
	_, err := s.UpdateSetting(ctx, knowledge.SettingMaxResults, "3")
	require.NoError(t, err)

	hits, err := s.Search(ctx, []string{"lint"}, "proj:default", "")
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearch_TaskSizeAtLeast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, s, "proj")
	ids := map[knowledge.TaskSize]string{}
	for _, sz := range knowledge.TaskSizes {
		ids[sz] = mustWrite(t, s, "proj:default", "migration checklist", "release", sz)
	}
	mustWrite(t, s, "proj:default", "migration checklist", "release", "")

	hits, err := s.Search(ctx, []string{"migration"}, "proj:default", knowledge.SizeM)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, h := range hits {
		got[h.ID] = true
	}
	assert.Equal(t, map[string]bool{ids[knowledge.SizeM]: true, ids[knowledge.SizeL]: true, ids[knowledge.SizeXL]: true}, got)

	hits, err = s.Search(ctx, []string{"migration"}, "proj:default", "")
	require.NoError(t, err)
	assert.Len(t, hits, 6, "no filter includes unsized entries")

	_, err = s.Search(ctx, []string{"migration"}, "proj:default", "XXL")
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat)
}

func TestTaskSize(t *testing.T) {
	sz, err := knowledge.ParseTaskSize("xl")
	require.NoError(t, err)
	assert.Equal(t, knowledge.SizeXL, sz)

	_, err = knowledge.ParseTaskSize("huge")
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat)

	assert.Equal(t, []knowledge.TaskSize{knowledge.SizeL, knowledge.SizeXL}, knowledge.SizeL.AtLeast())
	assert.Nil(t, knowledge.TaskSize("?").AtLeast())
}
