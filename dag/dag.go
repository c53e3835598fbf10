package dag

// DAG is an acyclic (tasks, edges) structure (spec §3). Edges are implicit
// in each task's DependsOn list; Layers is computed on demand by Topo, not
// stored, so that a replanned DAG never carries stale layering.
type DAG struct {
	Tasks []Task
	index map[string]int
}

// New builds a DAG from a task list, validating that every dependency
// resolves to a known task and that no two tasks share an id. It does not
// check for cycles; call Topo for that (cycle detection is a property of
// the layering algorithm itself per spec §4.1).
func New(tasks []Task) (*DAG, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, exists := index[t.ID]; exists {
			return nil, &ErrDuplicateTaskID{TaskID: t.ID}
		}
		index[t.ID] = i
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, &ErrUnknownDependency{TaskID: t.ID, DepID: dep}
			}
		}
	}
	return &DAG{Tasks: tasks, index: index}, nil
}

// Task looks up a task by id.
func (d *DAG) Task(id string) (Task, bool) {
	i, ok := d.index[id]
	if !ok {
		return Task{}, false
	}
	return d.Tasks[i], true
}

// Topo computes the topological layers via Kahn's algorithm: layer 0 holds
// every task with no unmet dependency; layer k+1 holds every task whose
// dependencies are all satisfied by layers <= k. Ties within a layer are
// broken by insertion order in Tasks, matching event-emission order
// (spec §4.1 "Tie-break & ordering").
func (d *DAG) Topo() ([][]string, error) {
	remaining := make(map[string]Task, len(d.Tasks))
	order := make([]string, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		remaining[t.ID] = t
		order = append(order, t.ID)
	}

	satisfied := make(map[string]bool, len(d.Tasks))
	var layers [][]string

	for len(remaining) > 0 {
		var layer []string
		for _, id := range order {
			t, ok := remaining[id]
			if !ok {
				continue
			}
			ready := true
			for _, dep := range t.DependsOn {
				if !satisfied[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			rest := make([]string, 0, len(remaining))
			for id := range remaining {
				rest = append(rest, id)
			}
			return nil, &ErrCircularDependency{Remaining: rest}
		}
		for _, id := range layer {
			delete(remaining, id)
			satisfied[id] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
