package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dustrun/internal/ir"
)

// ctxCheckInterval is how many candidate assignments the search tries
// between cancellation checks.
const ctxCheckInterval = 1024

// Resolver decides admissibility for whole programs before any step runs.
//
// Thread-safety: a Resolver holds no per-run state and may be shared.
type Resolver struct {
	parallelism int
	logger      *slog.Logger
}

// NewResolver creates a resolver solving up to parallelism constraint
// components at once.
func NewResolver(parallelism int, logger *slog.Logger) *Resolver {
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{parallelism: parallelism, logger: logger}
}

// component is a set of constraints sharing variables, directly or
// transitively. vars is sorted by declaration index.
type component struct {
	constraints []constraint
	vars        []int
}

type componentResult struct {
	ok     bool
	values map[int]ir.Value
}

func (r *Resolver) resolve(ctx context.Context, p *plan) (Resolution, error) {
	predicates := make([]string, len(p.constraints))
	for i, c := range p.constraints {
		predicates[i] = c.pred.String()
	}

	peak := peakLive(p.prog.Body)
	for _, c := range p.prog.Uses {
		if peak > c.Capacity {
			reason := fmt.Sprintf("resource commitment exceeded: %s allows %d live handles", c.Resource, c.Capacity)
			return Resolution{Reason: reason, Witness: newWitness(WitnessNonExistent, predicates, nil, peak, reason)}, nil
		}
	}

	comps := partition(p)
	results := make([]componentResult, len(comps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range comps {
		i := i
		g.Go(func() error {
			res, err := solve(gctx, p, comps[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	// Merge in component order so the outcome is scheduling-independent.
	assigned := make(map[int]ir.Value)
	for i, res := range results {
		if !res.ok {
			reason := unsatisfiable(comps[i])
			r.logger.Debug("constraint component unsatisfiable",
				"component", i,
				"constraints", len(comps[i].constraints))
			return Resolution{Reason: reason, Witness: newWitness(WitnessNonExistent, predicates, nil, peak, reason)}, nil
		}
		for idx, v := range res.values {
			assigned[idx] = v
		}
	}

	assignment := make([]Binding, 0, len(p.prog.Vars))
	for i, v := range p.prog.Vars {
		val, ok := assigned[i]
		if !ok {
			val = v.Domain.Enumerate()[0]
		}
		assignment = append(assignment, Binding{Name: v.Name, Value: val})
	}

	note := fmt.Sprintf("%d constraints in %d components", len(p.constraints), len(comps))
	return Resolution{
		Admissible: true,
		Witness:    newWitness(WitnessAdmissible, predicates, assignment, peak, note),
	}, nil
}

func unsatisfiable(c component) string {
	if len(c.constraints) == 1 {
		return "constraint unsatisfiable: " + c.constraints[0].pred.String()
	}
	preds := make([]string, len(c.constraints))
	for i, con := range c.constraints {
		preds[i] = con.pred.String()
	}
	return "constraints jointly unsatisfiable: " + strings.Join(preds, "; ")
}

// peakLive walks Q statements in program order, up to the first return,
// and returns the largest number of simultaneously live handles. Bodies
// have no loops, so the walk is exact for every run that reaches its
// return or the end.
func peakLive(body ir.Body) int {
	live := make(map[string]bool)
	peak := 0
walk:
	for _, s := range body {
		switch st := s.(type) {
		case ir.Return:
			break walk
		case ir.Alloc:
			live[st.Name] = true
		case ir.Measure:
			delete(live, st.Name)
		case ir.Dealloc:
			delete(live, st.Name)
		case ir.Move:
			if live[st.Name] {
				delete(live, st.Name)
				live[st.Into] = true
			}
		}
		peak = max(peak, len(live))
	}
	return peak
}

// partition groups constraints into connected components of the
// variable/constraint graph. Components are ordered by their first
// constraint; constraints without variables each form their own.
func partition(p *plan) []component {
	parent := make([]int, len(p.prog.Vars))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, c := range p.constraints {
		for _, v := range c.vars[min(1, len(c.vars)):] {
			a, b := find(c.vars[0]), find(v)
			if a != b {
				parent[max(a, b)] = min(a, b)
			}
		}
	}

	var comps []component
	byRoot := make(map[int]int)
	for _, c := range p.constraints {
		if len(c.vars) == 0 {
			comps = append(comps, component{constraints: []constraint{c}})
			continue
		}
		root := find(c.vars[0])
		idx, ok := byRoot[root]
		if !ok {
			idx = len(comps)
			byRoot[root] = idx
			comps = append(comps, component{})
		}
		comps[idx].constraints = append(comps[idx].constraints, c)
	}

	for i := range comps {
		seen := make(map[int]bool)
		for _, c := range comps[i].constraints {
			for _, v := range c.vars {
				if !seen[v] {
					seen[v] = true
					comps[i].vars = append(comps[i].vars, v)
				}
			}
		}
		sort.Ints(comps[i].vars)
	}
	return comps
}

// assignmentEnv exposes a partial assignment to the evaluator.
type assignmentEnv struct {
	values map[int]ir.Value
	index  map[string]int
}

func (e *assignmentEnv) Lookup(name string) (ir.Value, bool) {
	idx, ok := e.index[name]
	if !ok {
		return nil, false
	}
	v, ok := e.values[idx]
	return v, ok
}

// solve runs a deterministic backtracking search over one component.
// Vars are tried in declaration order and values in domain order; each
// constraint is checked as soon as its last variable is assigned. A
// predicate that errors or yields a non-Bool is unsatisfied.
func solve(ctx context.Context, p *plan, c component) (componentResult, error) {
	pos := make(map[int]int, len(c.vars))
	for i, v := range c.vars {
		pos[v] = i
	}
	// checks[i] are the constraints decided once vars[i] is assigned.
	checks := make([][]constraint, len(c.vars))
	var ground []constraint
	for _, con := range c.constraints {
		if len(con.vars) == 0 {
			ground = append(ground, con)
			continue
		}
		last := 0
		for _, v := range con.vars {
			last = max(last, pos[v])
		}
		checks[last] = append(checks[last], con)
	}

	env := &assignmentEnv{values: make(map[int]ir.Value), index: make(map[string]int)}
	for _, v := range c.vars {
		env.index[p.prog.Vars[v].Name] = v
	}

	holds := func(cons []constraint) bool {
		for _, con := range cons {
			ok, err := p.eval.EvalBool(con.pred, env)
			if err != nil || !ok {
				return false
			}
		}
		return true
	}

	if !holds(ground) {
		return componentResult{}, nil
	}

	domains := make([][]ir.Value, len(c.vars))
	for i, v := range c.vars {
		domains[i] = p.prog.Vars[v].Domain.Enumerate()
	}

	tried := 0
	var search func(depth int) (bool, error)
	search = func(depth int) (bool, error) {
		if depth == len(c.vars) {
			return true, nil
		}
		v := c.vars[depth]
		for _, val := range domains[depth] {
			tried++
			if tried%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return false, err
				}
			}
			env.values[v] = val
			if !holds(checks[depth]) {
				continue
			}
			found, err := search(depth + 1)
			if err != nil || found {
				return found, err
			}
		}
		delete(env.values, v)
		return false, nil
	}

	found, err := search(0)
	if err != nil {
		return componentResult{}, err
	}
	if !found {
		return componentResult{}, nil
	}
	values := make(map[int]ir.Value, len(env.values))
	for k, v := range env.values {
		values[k] = v
	}
	return componentResult{ok: true, values: values}, nil
}
