package scopegraph

// ParentsFunc returns the direct parent ids of a scope.
type ParentsFunc func(id string) ([]string, error)

// Ancestor is one scope in an ancestor closure together with the BFS level
// at which it was first reached. The start scope has level 0.
type Ancestor struct {
	ID    string
	Level int
}

// Overlay answers with proposed for child and defers to base for every other
// scope, so a walk can see a parent set before it is committed.
func Overlay(base ParentsFunc, child string, proposed []string) ParentsFunc {
	return func(id string) ([]string, error) {
		if id == child {
			return proposed, nil
		}
		return base(id)
	}
}

// FindCycle reports the first parent in added whose ancestor closure
// contains child, i.e. the edge child->parent would close a cycle. parents
// must already reflect the proposed graph state. An empty string means the
// batch is acyclic.
func FindCycle(child string, added []string, parents ParentsFunc) (string, error) {
	for _, p := range added {
		if p == child {
			return p, nil
		}
		found, err := reaches(p, child, parents)
		if err != nil {
			return "", err
		}
		if found {
			return p, nil
		}
	}
	return "", nil
}

// reaches walks from's transitive parents looking for target.
func reaches(from, target string, parents ParentsFunc) (bool, error) {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		ps, err := parents(id)
		if err != nil {
			return false, err
		}
		for _, p := range ps {
			if p == target {
				return true, nil
			}
			if visited[p] {
				continue
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}
	return false, nil
}

// AncestorClosure walks parent edges breadth-first from start. Each scope is
// returned once, at the minimum level it was discovered, in BFS order.
// Diamonds are collapsed and a corrupted graph with a cycle still terminates.
func AncestorClosure(start string, parents ParentsFunc) ([]Ancestor, error) {
	visited := map[string]bool{start: true}
	out := []Ancestor{{ID: start, Level: 0}}

	frontier := []string{start}
	for level := 1; len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			ps, err := parents(id)
			if err != nil {
				return nil, err
			}
			for _, p := range ps {
				if visited[p] {
					continue
				}
				visited[p] = true
				out = append(out, Ancestor{ID: p, Level: level})
				next = append(next, p)
			}
		}
		frontier = next
	}
	return out, nil
}
