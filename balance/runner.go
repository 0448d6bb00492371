package balance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
)

// Balancer moves elements between partitions until the weighted element
// imbalance (max/avg) is at most maxImbalance, or it gives up trying.
type Balancer interface {
	Balance(weights *mesh.Tag, maxImbalance float64) error
}

// RunBalancer weighs the elements, balances, then removes and destroys the
// weight tag whatever the balancer does.
func RunBalancer(calc *Calculator, b Balancer, maxImbalance float64) (err error) {
	m := calc.Mesh
	tag, err := calc.ElementWeights()
	if err != nil {
		return fmt.Errorf("weighing elements: %w", err)
	}
	defer func() {
		m.RemoveTag(tag, m.Dimension())
		if derr := m.DestroyTag(tag); derr != nil && err == nil {
			err = derr
		}
	}()
	return b.Balance(tag, maxImbalance)
}

// Variant names one of the balancers a stage can run
type Variant int

const (
	GraphVariant Variant = iota
	RIBVariant
	DiffusiveVariant
)

func (v Variant) String() string {
	switch v {
	case GraphVariant:
		return "graph"
	case RIBVariant:
		return "rib"
	case DiffusiveVariant:
		return "diffusive"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// Stage selects the balancers run at one point of the adaptation
type Stage struct {
	Graph, RIB, Diffusive bool
}

// Variants lists the enabled balancers in run order
func (s Stage) Variants() (v []Variant) {
	if s.Graph {
		v = append(v, GraphVariant)
	}
	if s.RIB {
		v = append(v, RIBVariant)
	}
	if s.Diffusive {
		v = append(v, DiffusiveVariant)
	}
	return
}

// Runner runs balance stages for one mesh
type Runner struct {
	Calc          *Calculator
	MaxImbalance  float64
	DiffusionStep float64
	Logger        *slog.Logger

	// NewBalancer overrides the built-in balancers
	NewBalancer func(v Variant) Balancer
}

func (r *Runner) balancer(v Variant) Balancer {
	if r.NewBalancer != nil {
		return r.NewBalancer(v)
	}
	logger := logging.OrNop(r.Logger)
	switch v {
	case RIBVariant:
		return &GraphBalancer{Mesh: r.Calc.Mesh, Method: RIB, Logger: logger}
	case DiffusiveVariant:
		return &CentroidDiffuser{Mesh: r.Calc.Mesh, Step: r.DiffusionStep, Logger: logger}
	}
	return &GraphBalancer{Mesh: r.Calc.Mesh, Method: Graph, Logger: logger}
}

// RunStage runs the enabled balancers of s in the order graph, RIB,
// diffusive. A single partition mesh is left untouched.
func (r *Runner) RunStage(name string, s Stage) error {
	if r.Calc.Mesh.NumPartitions <= 1 {
		return nil
	}
	logger := logging.OrNop(r.Logger)
	for _, v := range s.Variants() {
		logger.Debug("entering balancer", "stage", name, "balancer", v)
		if err := RunBalancer(r.Calc, r.balancer(v), r.MaxImbalance); err != nil {
			return fmt.Errorf("%s balance with %s: %w", name, v, err)
		}
		logger.Debug("exiting balancer", "stage", name, "balancer", v)
	}
	return nil
}

func (r *Runner) PreBalance(s Stage) error { return r.RunStage("pre", s) }

func (r *Runner) MidBalance(s Stage) error { return r.RunStage("mid", s) }

// PostBalance runs the final stage and reports the element imbalance
func (r *Runner) PostBalance(s Stage) error {
	m := r.Calc.Mesh
	if m.NumPartitions <= 1 {
		return nil
	}
	if err := r.RunStage("post", s); err != nil {
		return err
	}
	imb := EntityImbalance(m)
	logging.OrNop(r.Logger).Info("element imbalance",
		"percentOfAverage", math.Round((imb[m.Dimension()]-1)*100))
	return nil
}

// EntityImbalance returns max/avg of the per-partition entity counts for
// each dimension up to the mesh dimension. Entities on a partition boundary
// count once in every partition that uses them.
func EntityImbalance(m *mesh.Mesh) (imb [4]float64) {
	D := m.Dimension()
	counts := make([][]float64, D+1)
	seen := make([]map[string]struct{}, m.NumPartitions)
	for d := 0; d <= D; d++ {
		counts[d] = make([]float64, m.NumPartitions)
		for p := range seen {
			seen[p] = make(map[string]struct{})
		}
		for e, verts := range m.Elements {
			if verts == nil {
				continue
			}
			p := m.EToP[e]
			for _, ent := range m.Downward(e, d) {
				key := entityKey(ent)
				if _, ok := seen[p][key]; !ok {
					seen[p][key] = struct{}{}
					counts[d][p]++
				}
			}
		}
		imb[d] = mesh.Imbalance(counts[d])
	}
	return
}

func entityKey(verts []int) string {
	s := make([]int, len(verts))
	copy(s, verts)
	sort.Ints(s)
	return fmt.Sprint(s)
}
