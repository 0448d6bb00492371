// Package balance weighs elements by the work adaptation will do on them and
// runs the load balancers that move elements between partitions.
package balance

import (
	"math"
	"runtime"
	"sync"

	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

// WeightTagName is the element tag holding balance weights. At most one
// exists per mesh at a time.
const WeightTagName = "ma_weight"

// DefaultCoarsenBase is the per-iteration element count reduction assumed
// when bounding coarsening weights. Uniform coarsening measured between 3x
// (3D) and 4x (structured 2D).
const DefaultCoarsenBase = 4.

// Params carries the session state that shapes element weights
type Params struct {
	RefinesLeft, CoarsensLeft int

	ShouldRefineLayer     bool
	ShouldCoarsenLayer    bool
	ShouldTurnLayerToTets bool

	// CoarsenBase bounds the weight below by CoarsenBase^-CoarsensLeft.
	// Zero means DefaultCoarsenBase.
	CoarsenBase float64
}

// Calculator predicts the post-adaptation cost of elements. Field must be
// safe for concurrent use.
type Calculator struct {
	Mesh   *mesh.Mesh
	Field  sizefield.SizeField
	Params Params

	// NumWorkers bounds the goroutines used by ElementWeights; zero uses one
	// per CPU.
	NumWorkers int
}

// clamp bounds x to [lo, hi]; NaN counts as one element kept as is
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		x = 1
	}
	if x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}

// sizeWeight measures prisms by their first triangular cap: their thickness
// is far below the isotropic target size and would weigh them near zero.
func (c *Calculator) sizeWeight(e int) float64 {
	if c.Mesh.Type(e) == mesh.Prism {
		caps := c.Mesh.Downward(e, 2)
		return sizefield.FaceWeight(c.Field, c.Mesh, caps[0])
	}
	return sizefield.Weight(c.Field, c.Mesh, e)
}

func (c *Calculator) clampForIterations(w float64) float64 {
	base := c.Params.CoarsenBase
	if base <= 0 {
		base = DefaultCoarsenBase
	}
	var (
		hi = math.Pow(2, float64(c.Mesh.Dimension()*c.Params.RefinesLeft))
		lo = math.Pow(base, -float64(c.Params.CoarsensLeft))
	)
	return clamp(w, lo, hi)
}

func (c *Calculator) clampForLayerPermissions(t mesh.ElementType, w float64) float64 {
	if t.IsSimplex() {
		return w
	}
	if !c.Params.ShouldRefineLayer {
		w = math.Max(1, w)
	}
	if !c.Params.ShouldCoarsenLayer {
		w = math.Min(1, w)
	}
	return w
}

func (c *Calculator) accountForTets(t mesh.ElementType, w float64) float64 {
	if !c.Params.ShouldTurnLayerToTets {
		return w
	}
	switch t {
	case mesh.Prism:
		return 3 * w
	case mesh.Pyramid:
		return 2 * w
	}
	return w
}

// ElementWeight is the expected number of elements e becomes after the
// remaining iterations
func (c *Calculator) ElementWeight(e int) float64 {
	t := c.Mesh.Type(e)
	w := c.sizeWeight(e)
	w = c.clampForIterations(w)
	w = c.clampForLayerPermissions(t, w)
	return c.accountForTets(t, w)
}

// topElements lists the live elements of the mesh dimension
func topElements(m *mesh.Mesh) []int {
	elems := make([]int, 0, len(m.Elements))
	for e, verts := range m.Elements {
		if verts != nil && m.Type(e).Dimension() == m.Dimension() {
			elems = append(elems, e)
		}
	}
	return elems
}

// ElementWeights creates the weight tag and sets it on every top dimension
// element. The elements are cut into contiguous ranges weighed concurrently;
// the tag is written once all ranges are done. It fails if the tag already
// exists.
func (c *Calculator) ElementWeights() (*mesh.Tag, error) {
	tag, err := c.Mesh.CreateTag(WeightTagName)
	if err != nil {
		return nil, err
	}
	var (
		elems   = topElements(c.Mesh)
		weights = make([]float64, len(elems))
		NP      = c.NumWorkers
		wg      = sync.WaitGroup{}
	)
	if NP <= 0 {
		NP = runtime.NumCPU()
	}
	NP = max(1, min(NP, len(elems)))
	for np := 0; np < NP; np++ {
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			bucket := mesh.Split1D(len(elems), NP, np)
			for i := bucket[0]; i < bucket[1]; i++ {
				weights[i] = c.ElementWeight(elems[i])
			}
		}(np)
	}
	wg.Wait()
	for i, e := range elems {
		c.Mesh.SetTag(e, tag, weights[i])
	}
	return tag, nil
}

// TagWeight returns a weight lookup reading tag, one for untagged elements
func TagWeight(m *mesh.Mesh, tag *mesh.Tag) func(e int) float64 {
	return func(e int) float64 {
		if w, ok := m.GetTag(e, tag); ok {
			return w
		}
		return 1
	}
}

// WeighByMemory tags elements with a cost proportional to the storage they
// carry: vertex count plus one per bounding face.
func WeighByMemory(m *mesh.Mesh) (*mesh.Tag, error) {
	tag, err := m.CreateTag(WeightTagName)
	if err != nil {
		return nil, err
	}
	for _, e := range topElements(m) {
		cost := len(m.Elements[e])
		if m.Dimension() == 3 {
			cost += len(m.Downward(e, 2))
		} else {
			cost += len(m.Downward(e, 1))
		}
		m.SetTag(e, tag, float64(cost))
	}
	return tag, nil
}
