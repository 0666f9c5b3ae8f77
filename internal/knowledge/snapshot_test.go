package knowledge_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kaizen/kaizen/internal/knowledge"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()
	mustNamespace(t, src, "java")
	mustNamespace(t, src, "proj")
	mustScope(t, src, "proj:web")
	mustScope(t, src, "proj:api", "java:default", "proj:web")
	active := mustWrite(t, src, "proj:api", "wrap errors", "errors", knowledge.SizeS)
	old := mustWrite(t, src, "proj:api", "panic on errors", "errors", "")
	_, err := src.Resolve(ctx, active, []string{old})
	require.NoError(t, err)

	snap, err := src.Export(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.WriteYAML(&buf))
	decoded, err := knowledge.ReadSnapshot(&buf)
	require.NoError(t, err)

	dst := newTestStore(t)
	res, err := dst.Import(ctx, decoded)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NamespacesCreated)
	assert.Equal(t, 2, res.ScopesCreated)
	assert.Equal(t, 2, res.KnowledgeCreated)

	api, err := dst.GetScope(ctx, "proj:api")
	require.NoError(t, err)
	assert.Equal(t, []string{"java:default", "proj:default", "proj:web"}, api.Parents)

	e, err := dst.Get(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, active, e.SuppressedBy)

	// Re-exporting gives the same graph, ignoring ids and timestamps.
	again, err := dst.Export(ctx)
	require.NoError(t, err)
	ignore := cmpopts.IgnoreFields(knowledge.Scope{}, "ID", "CreatedAt", "UpdatedAt")
	ignoreNS := cmpopts.IgnoreFields(knowledge.Namespace{}, "CreatedAt", "UpdatedAt")
	ignoreEntry := cmpopts.IgnoreFields(knowledge.Entry{}, "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff(snap.Namespaces, again.Namespaces, ignore, ignoreNS); diff != "" {
		t.Errorf("namespaces (-src +dst):\n%s", diff)
	}
	if diff := cmp.Diff(snap.Knowledge, again.Knowledge, ignoreEntry); diff != "" {
		t.Errorf("knowledge (-src +dst):\n%s", diff)
	}

	// Importing twice skips what already exists.
	res, err = dst.Import(ctx, decoded)
	require.NoError(t, err)
	assert.Zero(t, res.NamespacesCreated)
	assert.Zero(t, res.ScopesCreated)
	assert.Equal(t, 2, res.KnowledgeSkipped)
}

func TestImport_RejectsCycleAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := &knowledge.Snapshot{
		Version: knowledge.SnapshotVersion,
		Namespaces: []knowledge.Namespace{{
			Name:        "loop",
			Description: "cyclic",
			Scopes: []knowledge.Scope{
				{Name: "a1", Description: "a", Parents: []string{"loop:b1"}},
				{Name: "b1", Description: "b", Parents: []string{"loop:a1"}},
			},
		}},
	}
	_, err := s.Import(ctx, snap)
	require.ErrorIs(t, err, knowledge.ErrCircularReference)

	_, err = s.GetNamespace(ctx, "loop")
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestReadSnapshot_Errors(t *testing.T) {
	_, err := knowledge.ReadSnapshot(strings.NewReader("version: 99\nnamespaces: []\n"))
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat)

	_, err = knowledge.ReadSnapshot(strings.NewReader("namespaces: [unclosed"))
	assert.ErrorIs(t, err, knowledge.ErrInvalidFormat)
}
