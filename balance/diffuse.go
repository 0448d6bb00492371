package balance

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
)

const (
	DefaultDiffusionStep     = 0.1
	DefaultDiffusionMaxIters = 100

	// knapsackResolution is the number of capacity units a planned transfer
	// is quantized into
	knapsackResolution = 100
	// maxCandidates bounds the boundary elements considered per transfer
	maxCandidates = 64
)

// CentroidDiffuser moves partition boundary elements from heavy partitions
// to lighter neighbours. Every iteration each heavy partition sends Step
// times the load difference to each lighter neighbour, choosing among the
// boundary elements closest to the neighbour's centroid.
type CentroidDiffuser struct {
	Mesh          *mesh.Mesh
	Step          float64
	MaxIterations int
	Logger        *slog.Logger
}

func (d *CentroidDiffuser) Balance(weights *mesh.Tag, maxImbalance float64) error {
	var (
		m       = d.Mesh
		logger  = logging.OrNop(d.Logger)
		weight  = TagWeight(m, weights)
		step    = d.Step
		maxIter = d.MaxIterations
	)
	if step <= 0 {
		step = DefaultDiffusionStep
	}
	if maxIter <= 0 {
		maxIter = DefaultDiffusionMaxIters
	}
	m.BuildConnectivity()
	for iter := 0; iter < maxIter; iter++ {
		loads := m.PartitionLoads(weight)
		imb := mesh.Imbalance(loads)
		logger.Debug("diffusion", "iteration", iter, "imbalance", imb)
		if imb <= maxImbalance {
			logger.Info("diffusion balanced", "iterations", iter, "imbalance", imb)
			return nil
		}
		if moved := d.diffuseOnce(loads, weight, step); moved == 0 {
			logger.Warn("diffusion stalled", "iteration", iter, "imbalance", imb)
			return nil
		}
	}
	logger.Warn("diffusion did not converge", "iterations", maxIter,
		"imbalance", mesh.Imbalance(m.PartitionLoads(weight)))
	return nil
}

func (d *CentroidDiffuser) partitionCentroids(weight func(e int) float64) []r3.Vec {
	m := d.Mesh
	var (
		sums = make([]r3.Vec, m.NumPartitions)
		w    = make([]float64, m.NumPartitions)
	)
	for _, e := range topElements(m) {
		p := m.EToP[e]
		we := weight(e)
		sums[p] = r3.Add(sums[p], r3.Scale(we, m.Centroid(e)))
		w[p] += we
	}
	for p := range sums {
		if w[p] > 0 {
			sums[p] = r3.Scale(1/w[p], sums[p])
		}
	}
	return sums
}

// diffuseOnce runs one round of transfers and returns the number of
// elements migrated
func (d *CentroidDiffuser) diffuseOnce(loads []float64, weight func(e int) float64, step float64) (moved int) {
	m := d.Mesh
	centroids := d.partitionCentroids(weight)

	// shared[p][q][e]: faces element e of p shares with partition q
	shared := make([]map[int]map[int]int, m.NumPartitions)
	for p := range shared {
		shared[p] = make(map[int]map[int]int)
	}
	for _, e := range topElements(m) {
		p := m.EToP[e]
		for _, nbr := range m.EToE[e] {
			if nbr < 0 || !m.IsAlive(nbr) {
				continue
			}
			q := m.EToP[nbr]
			if q == p {
				continue
			}
			if shared[p][q] == nil {
				shared[p][q] = make(map[int]int)
			}
			shared[p][q][e]++
		}
	}

	migrated := make(map[int]bool)
	for p := 0; p < m.NumPartitions; p++ {
		nbrs := make([]int, 0, len(shared[p]))
		for q := range shared[p] {
			nbrs = append(nbrs, q)
		}
		sort.Ints(nbrs)
		for _, q := range nbrs {
			if loads[q] >= loads[p] {
				continue
			}
			planned := step * (loads[p] - loads[q])
			var cands []int
			for e := range shared[p][q] {
				if !migrated[e] {
					cands = append(cands, e)
				}
			}
			dist := make(map[int]float64, len(cands))
			for _, e := range cands {
				dist[e] = r3.Norm2(r3.Sub(m.Centroid(e), centroids[q]))
			}
			sort.Slice(cands, func(i, j int) bool {
				if dist[cands[i]] != dist[cands[j]] {
					return dist[cands[i]] < dist[cands[j]]
				}
				return cands[i] < cands[j]
			})
			if len(cands) > maxCandidates {
				cands = cands[:maxCandidates]
			}
			unit := planned / knapsackResolution
			ws := make([]int, len(cands))
			vs := make([]int, len(cands))
			for i, e := range cands {
				ws[i] = int(math.Min(math.Ceil(weight(e)/unit), knapsackResolution+1))
				// prefer elements that shrink the shared boundary
				vs[i] = 1 + shared[p][q][e]
			}
			_, chosen := Knapsack(knapsackResolution, ws, vs)
			for _, i := range chosen {
				e := cands[i]
				m.EToP[e] = q
				migrated[e] = true
				loads[p] -= weight(e)
				loads[q] += weight(e)
				moved++
			}
		}
	}
	return
}
