package scopegraph

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// edges is an in-memory adjacency list used as a ParentsFunc.
type edges map[string][]string

func (e edges) parents(id string) ([]string, error) {
	return e[id], nil
}

// ─── Refs ───────────────────────────────────────────────────────────────────

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{in: "proj:child", want: Ref{Namespace: "proj", Scope: "child"}},
		{in: "global:default", want: Ref{Namespace: "global", Scope: "default"}},
		{in: "a1-b2:c-3", want: Ref{Namespace: "a1-b2", Scope: "c-3"}},
		{in: "proj", wantErr: true},
		{in: ":child", wantErr: true},
		{in: "proj:", wantErr: true},
		{in: "a:b:c", wantErr: true},
		{in: "Proj:child", wantErr: true},
		{in: "proj:my_scope", wantErr: true},
		{in: "p:child", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRef(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("ParseRef(%q) error = %v, want ErrMalformed", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateName_Length(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateName(string(long)); err == nil {
		t.Error("65-character name should be rejected")
	}
	if err := ValidateName(string(long[:64])); err != nil {
		t.Errorf("64-character name rejected: %v", err)
	}
}

func TestEnsureDefaultParent(t *testing.T) {
	child := Ref{Namespace: "proj", Scope: "child"}
	other := Ref{Namespace: "java", Scope: "default"}

	got := EnsureDefaultParent(child, nil)
	if diff := cmp.Diff([]Ref{{Namespace: "proj", Scope: "default"}}, got); diff != "" {
		t.Errorf("empty parents (-want +got):\n%s", diff)
	}

	got = EnsureDefaultParent(child, []Ref{other, other})
	want := []Ref{other, {Namespace: "proj", Scope: "default"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cross-namespace parent (-want +got):\n%s", diff)
	}

	got = EnsureDefaultParent(child, []Ref{child.DefaultOf(), other})
	want = []Ref{child.DefaultOf(), other}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("already present (-want +got):\n%s", diff)
	}

	got = EnsureDefaultParent(child.DefaultOf(), []Ref{other})
	if diff := cmp.Diff([]Ref{other}, got); diff != "" {
		t.Errorf("default scope must not parent itself (-want +got):\n%s", diff)
	}
}

// ─── Cycles ─────────────────────────────────────────────────────────────────

func TestFindCycle(t *testing.T) {
	// c -> b -> a
	g := edges{"c": {"b"}, "b": {"a"}}

	t.Run("self reference", func(t *testing.T) {
		got, err := FindCycle("a", []string{"a"}, g.parents)
		if err != nil || got != "a" {
			t.Fatalf("FindCycle = %q, %v; want a", got, err)
		}
	})

	t.Run("closing edge", func(t *testing.T) {
		proposed := Overlay(g.parents, "a", []string{"c"})
		got, err := FindCycle("a", []string{"c"}, proposed)
		if err != nil || got != "c" {
			t.Fatalf("FindCycle = %q, %v; want c", got, err)
		}
	})

	t.Run("acyclic addition", func(t *testing.T) {
		g := edges{"c": {"b"}, "b": {"a"}, "d": nil}
		proposed := Overlay(g.parents, "c", []string{"b", "d"})
		got, err := FindCycle("c", []string{"d"}, proposed)
		if err != nil || got != "" {
			t.Fatalf("FindCycle = %q, %v; want none", got, err)
		}
	})

	t.Run("batch validated as a unit", func(t *testing.T) {
		// Neither x->y nor y->x exists yet. Proposing y as x's parent while
		// y already lists x must be caught on the proposed state.
		g := edges{"y": {"x"}}
		proposed := Overlay(g.parents, "x", []string{"y"})
		got, err := FindCycle("x", []string{"y"}, proposed)
		if err != nil || got != "y" {
			t.Fatalf("FindCycle = %q, %v; want y", got, err)
		}
	})
}

func TestFindCycle_LookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := FindCycle("a", []string{"b"}, func(string) ([]string, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

// TestFindCycle_RandomGraphsStayAcyclic adds random edges, accepting only
// the ones FindCycle approves, and checks the result is always a DAG.
func TestFindCycle_RandomGraphsStayAcyclic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	nodes := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}

	for round := 0; round < 200; round++ {
		g := edges{}
		for step := 0; step < 30; step++ {
			child := nodes[rng.Intn(len(nodes))]
			parent := nodes[rng.Intn(len(nodes))]

			if rng.Intn(4) == 0 && len(g[child]) > 0 {
				// Remove a random edge.
				i := rng.Intn(len(g[child]))
				g[child] = append(g[child][:i:i], g[child][i+1:]...)
				continue
			}

			proposed := append(append([]string{}, g[child]...), parent)
			bad, err := FindCycle(child, []string{parent}, Overlay(g.parents, child, proposed))
			if err != nil {
				t.Fatal(err)
			}
			if bad == "" {
				g[child] = proposed
			}
		}
		if cyc := hasCycle(g, nodes); cyc != "" {
			t.Fatalf("round %d: graph contains a cycle through %s: %v", round, cyc, g)
		}
	}
}

// hasCycle is an independent DFS colouring check.
func hasCycle(g edges, nodes []string) string {
	const (
		white = iota
		grey
		black
	)
	colour := map[string]int{}
	var visit func(string) string
	visit = func(n string) string {
		colour[n] = grey
		for _, p := range g[n] {
			switch colour[p] {
			case grey:
				return p
			case white:
				if c := visit(p); c != "" {
					return c
				}
			}
		}
		colour[n] = black
		return ""
	}
	for _, n := range nodes {
		if colour[n] == white {
			if c := visit(n); c != "" {
				return c
			}
		}
	}
	return ""
}

// ─── Closure ────────────────────────────────────────────────────────────────

func TestAncestorClosure_Diamond(t *testing.T) {
	// B and C inherit from A; D inherits from both.
	g := edges{"b": {"a"}, "c": {"a"}, "d": {"b", "c"}}

	got, err := AncestorClosure("d", g.parents)
	if err != nil {
		t.Fatal(err)
	}
	want := []Ancestor{
		{ID: "d", Level: 0},
		{ID: "b", Level: 1},
		{ID: "c", Level: 1},
		{ID: "a", Level: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure (-want +got):\n%s", diff)
	}
}

func TestAncestorClosure_MinimumLevel(t *testing.T) {
	// a is reachable at level 1 directly and at level 3 through b -> c.
	g := edges{"s": {"b", "a"}, "b": {"c"}, "c": {"a"}}

	got, err := AncestorClosure("s", g.parents)
	if err != nil {
		t.Fatal(err)
	}
	levels := map[string]int{}
	for _, a := range got {
		if _, dup := levels[a.ID]; dup {
			t.Fatalf("%s returned twice", a.ID)
		}
		levels[a.ID] = a.Level
	}
	if levels["a"] != 1 {
		t.Errorf("a level = %d, want 1", levels["a"])
	}
	if levels["c"] != 2 {
		t.Errorf("c level = %d, want 2", levels["c"])
	}
}

func TestAncestorClosure_TerminatesOnCycle(t *testing.T) {
	g := edges{"a": {"b"}, "b": {"a"}}
	got, err := AncestorClosure("a", g.parents)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
