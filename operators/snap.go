package operators

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Snap moves boundary vertices onto their model entities. A vertex is moved
// only if every element around it stays valid; otherwise it is tried again
// half way. It returns the number of vertices moved.
func (e *Engine) Snap() (snapped int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	if e.Model == nil {
		return
	}
	var (
		m      = e.Mesh
		start  = time.Now()
		up     = m.VertexUpward()
		failed int
		valid  = func(float64) float64 { return e.Config.ValidQuality }
	)
	for v, x := range m.Vertices {
		c := m.Classification[v]
		if len(up[v]) == 0 || c.Dim >= m.Dim {
			continue
		}
		target := e.Model.Project(c, x)
		if r3.Norm(r3.Sub(target, x)) <= snapTolerance*math.Max(1, r3.Norm(x)) {
			continue
		}
		if e.tryMove(v, liveCavity(m, up[v]), target, valid) {
			snapped++
		} else {
			failed++
		}
	}
	if failed > 0 {
		e.logger().Warn("vertices left off the model", "count", failed)
	}
	e.logger().Info("snapped", "vertices", snapped, "seconds", time.Since(start).Seconds())
	return
}

const snapTolerance = 1.e-12
