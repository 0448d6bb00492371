package mesh

import (
	"log/slog"
	"math"
)

// PartitionStats holds statistics for a single partition
type PartitionStats struct {
	ID           int
	NumElements  int
	Load         float64
	ElementTypes map[ElementType]int
	NumNeighbors map[int]int // neighbor partition -> shared faces
}

// Split1D splits n items into nparts contiguous ranges with a maximum
// imbalance of one item and returns the [begin,end) range of part.
func Split1D(n, nparts, part int) (bucket [2]int) {
	var (
		Npart            = n / nparts
		startAdd, endAdd int
		remainder        = n % nparts
	)
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if part+1 > remainder {
			startAdd = remainder
		} else {
			startAdd = part
			endAdd = 1
		}
	}
	bucket[0] = part*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// PartitionByIndex assigns contiguous runs of element slots to nparts
// partitions.
func (m *Mesh) PartitionByIndex(nparts int) {
	m.NumPartitions = nparts
	for p := 0; p < nparts; p++ {
		b := Split1D(len(m.Elements), nparts, p)
		for e := b[0]; e < b[1]; e++ {
			m.EToP[e] = p
		}
	}
}

// PartitionLoads sums weight over the live elements of every partition. A
// nil weight counts elements.
func (m *Mesh) PartitionLoads(weight func(e int) float64) []float64 {
	loads := make([]float64, m.NumPartitions)
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		w := 1.0
		if weight != nil {
			w = weight(e)
		}
		loads[m.EToP[e]] += w
	}
	return loads
}

// Imbalance returns max/avg of the loads, 1 for perfect balance
func Imbalance(loads []float64) float64 {
	var (
		total, maxLoad float64
	)
	for _, l := range loads {
		total += l
		maxLoad = math.Max(maxLoad, l)
	}
	if total == 0 {
		return 1
	}
	return maxLoad / (total / float64(len(loads)))
}

// AnalyzePartition computes per-partition statistics and logs the load
// imbalance, cut faces and partition interfaces.
func (m *Mesh) AnalyzePartition(weight func(e int) float64, logger *slog.Logger) (stats []PartitionStats, imbalance float64) {
	nparts := m.NumPartitions
	stats = make([]PartitionStats, nparts)
	for i := range stats {
		stats[i].ID = i
		stats[i].ElementTypes = make(map[ElementType]int)
		stats[i].NumNeighbors = make(map[int]int)
	}
	loads := m.PartitionLoads(weight)
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		s := &stats[m.EToP[e]]
		s.NumElements++
		s.ElementTypes[m.ElementTypes[e]]++
	}
	for p := range stats {
		stats[p].Load = loads[p]
	}

	if m.EToE == nil {
		m.BuildConnectivity()
	}
	cutFaces := 0
	interfaceFaces := make(map[[2]int]int)
	for elem, nbrs := range m.EToE {
		for _, neighbor := range nbrs {
			if neighbor < 0 || neighbor < elem { // Count each face once
				continue
			}
			p1, p2 := m.EToP[elem], m.EToP[neighbor]
			if p1 == p2 {
				continue
			}
			cutFaces++
			if p1 > p2 {
				p1, p2 = p2, p1
			}
			interfaceFaces[[2]int{p1, p2}]++
			stats[p1].NumNeighbors[p2]++
			stats[p2].NumNeighbors[p1]++
		}
	}

	imbalance = Imbalance(loads)
	minLoad, maxLoad := math.Inf(1), 0.
	for _, l := range loads {
		minLoad, maxLoad = math.Min(minLoad, l), math.Max(maxLoad, l)
	}
	logger.Info("partition analysis",
		"partitions", nparts,
		"cutFaces", cutFaces,
		"imbalancePercent", (imbalance-1)*100,
		"minLoad", minLoad,
		"maxLoad", maxLoad)
	for _, s := range stats {
		logger.Debug("partition",
			"id", s.ID,
			"elements", s.NumElements,
			"load", s.Load,
			"neighbors", len(s.NumNeighbors))
	}
	for pair, n := range interfaceFaces {
		logger.Debug("partition interface", "a", pair[0], "b", pair[1], "faces", n)
	}
	return
}

// GetPartitionBoundaryFaces returns, per partition, the faces on a physical
// or partition boundary. BuildConnectivity must have been called.
func (m *Mesh) GetPartitionBoundaryFaces() map[int][]int {
	boundaryFaces := make(map[int][]int)
	for elem, nbrs := range m.EToE {
		elemPart := m.EToP[elem]
		for faceIdx, neighbor := range nbrs {
			if neighbor < 0 || m.EToP[neighbor] != elemPart {
				boundaryFaces[elemPart] = append(boundaryFaces[elemPart], m.EToF[elem][faceIdx])
			}
		}
	}
	return boundaryFaces
}

// GetPartitionElements returns all live elements in a given partition
func (m *Mesh) GetPartitionElements(partID int) []int {
	elements := []int{}
	for elem, verts := range m.Elements {
		if verts != nil && m.EToP[elem] == partID {
			elements = append(elements, elem)
		}
	}
	return elements
}
