package balance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
)

// Method selects how GraphBalancer repartitions
type Method int

const (
	// Graph orders the element dual graph breadth first and cuts the order
	// into equal weight runs
	Graph Method = iota
	// RIB is recursive inertial bisection of the weighted centroids
	RIB
)

func (m Method) String() string {
	if m == RIB {
		return "rib"
	}
	return "graph"
}

// GraphBalancer repartitions the whole mesh from scratch
type GraphBalancer struct {
	Mesh   *mesh.Mesh
	Method Method
	Logger *slog.Logger
}

// DualGraph is the face adjacency of the live top dimension elements in
// compressed row form. Row i belongs to element Elements[i].
type DualGraph struct {
	Elements []int
	Indptr   []int
	Ind      []int
}

// Neighbors returns the rows adjacent to row i
func (g *DualGraph) Neighbors(i int) []int {
	return g.Ind[g.Indptr[i]:g.Indptr[i+1]]
}

// BuildDualGraph assembles the element adjacency through a DOK matrix and
// converts it to CSR
func BuildDualGraph(m *mesh.Mesh) *DualGraph {
	m.BuildConnectivity()
	elems := topElements(m)
	row := make(map[int]int, len(elems))
	for i, e := range elems {
		row[e] = i
	}
	g := &DualGraph{Elements: elems}
	if len(elems) == 0 {
		g.Indptr = []int{0}
		return g
	}
	dok := sparse.NewDOK(len(elems), len(elems))
	for i, e := range elems {
		for _, nbr := range m.EToE[e] {
			if j, ok := row[nbr]; ok && nbr != e {
				dok.Set(i, j, 1)
			}
		}
	}
	raw := dok.ToCSR().RawMatrix()
	g.Indptr = append([]int(nil), raw.Indptr...)
	g.Ind = append([]int(nil), raw.Ind...)
	return g
}

func (b *GraphBalancer) Balance(weights *mesh.Tag, maxImbalance float64) error {
	var (
		m      = b.Mesh
		logger = logging.OrNop(b.Logger)
		weight = TagWeight(m, weights)
	)
	if m.NumPartitions < 1 {
		return fmt.Errorf("mesh has %d partitions", m.NumPartitions)
	}
	before := mesh.Imbalance(m.PartitionLoads(weight))
	if before <= maxImbalance {
		logger.Debug("already balanced", "method", b.Method, "imbalance", before)
		return nil
	}
	switch b.Method {
	case RIB:
		elems := topElements(m)
		pts := make([]r3.Vec, len(elems))
		w := make([]float64, len(elems))
		for i, e := range elems {
			pts[i], w[i] = m.Centroid(e), weight(e)
		}
		parts := make([]int, len(elems))
		idx := make([]int, len(elems))
		for i := range idx {
			idx[i] = i
		}
		bisect(pts, w, idx, 0, m.NumPartitions, parts)
		for i, e := range elems {
			m.EToP[e] = parts[i]
		}
	default:
		g := BuildDualGraph(m)
		order := g.BreadthFirstOrder()
		w := make([]float64, len(order))
		for i, row := range order {
			w[i] = weight(g.Elements[row])
		}
		cuts := splitByWeight(w, m.NumPartitions)
		for p := 0; p < m.NumPartitions; p++ {
			for i := cuts[p]; i < cuts[p+1]; i++ {
				m.EToP[g.Elements[order[i]]] = p
			}
		}
	}
	after := mesh.Imbalance(m.PartitionLoads(weight))
	logger.Info("repartitioned", "method", b.Method, "before", before, "after", after)
	return nil
}

// BreadthFirstOrder visits every row, restarting at the lowest unvisited
// row when a connected component is exhausted
func (g *DualGraph) BreadthFirstOrder() []int {
	n := len(g.Elements)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	for seed := 0; seed < n; seed++ {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		queue := []int{seed}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			order = append(order, i)
			for _, j := range g.Neighbors(i) {
				if !visited[j] {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}
	}
	return order
}

// splitByWeight cuts w into nparts contiguous runs of near equal weight,
// returning the nparts+1 run boundaries. Each boundary falls at the prefix
// sum closest to its share of the total.
func splitByWeight(w []float64, nparts int) []int {
	var total float64
	for _, x := range w {
		total += x
	}
	cuts := make([]int, nparts+1)
	cuts[nparts] = len(w)
	var (
		i   int
		sum float64
	)
	for p := 1; p < nparts; p++ {
		target := total * float64(p) / float64(nparts)
		for i < len(w) && sum+w[i] <= target {
			sum += w[i]
			i++
		}
		if i < len(w) && target-sum > sum+w[i]-target {
			sum += w[i]
			i++
		}
		cuts[p] = i
	}
	return cuts
}

// bisect assigns the points idx to partitions [p0, p1) by splitting along
// the principal axis of their weighted inertia tensor
func bisect(pts []r3.Vec, w []float64, idx []int, p0, p1 int, parts []int) {
	if p1-p0 <= 1 || len(idx) <= 1 {
		for _, i := range idx {
			parts[i] = p0
		}
		return
	}
	axis := principalAxis(pts, w, idx)
	proj := make(map[int]float64, len(idx))
	for _, i := range idx {
		proj[i] = r3.Dot(pts[i], axis)
	}
	sort.SliceStable(idx, func(a, b int) bool { return proj[idx[a]] < proj[idx[b]] })

	var (
		nLeft = (p1 - p0) / 2
		total float64
	)
	for _, i := range idx {
		total += w[i]
	}
	target := total * float64(nLeft) / float64(p1-p0)
	var (
		sum float64
		cut int
	)
	for cut < len(idx) && sum+w[idx[cut]] <= target {
		sum += w[idx[cut]]
		cut++
	}
	if cut < len(idx) && target-sum > sum+w[idx[cut]]-target {
		cut++
	}
	left := append([]int(nil), idx[:cut]...)
	right := append([]int(nil), idx[cut:]...)
	bisect(pts, w, left, p0, p0+nLeft, parts)
	bisect(pts, w, right, p0+nLeft, p1, parts)
}

// principalAxis returns the eigenvector of the largest eigenvalue of
// Σ wᵢ (xᵢ-c)(xᵢ-c)ᵀ, the direction the points spread along most
func principalAxis(pts []r3.Vec, w []float64, idx []int) r3.Vec {
	var (
		c      r3.Vec
		wTotal float64
	)
	for _, i := range idx {
		c = r3.Add(c, r3.Scale(w[i], pts[i]))
		wTotal += w[i]
	}
	if wTotal == 0 {
		return r3.Vec{X: 1}
	}
	c = r3.Scale(1/wTotal, c)
	inertia := mat.NewSymDense(3, nil)
	for _, i := range idx {
		d := r3.Sub(pts[i], c)
		inertia.SymRankOne(inertia, w[i], mat.NewVecDense(3, []float64{d.X, d.Y, d.Z}))
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(inertia, true); !ok {
		return r3.Vec{X: 1}
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	k, best := 0, math.Inf(-1)
	for j, v := range values {
		if v > best {
			k, best = j, v
		}
	}
	return r3.Vec{X: vectors.At(0, k), Y: vectors.At(1, k), Z: vectors.At(2, k)}
}
