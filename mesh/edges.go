package mesh

import (
	"fmt"
	"math"
)

/*
EdgeKey stores an edge's two vertex indices packed into one comparable value.
An edge between vertices [4] and [0] is always stored as [0,4], so both
orientations of an edge map to the same key.
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) EdgeKey {
	for _, vert := range verts {
		if vert < 0 || vert > math.MaxUint32 {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	i1, i2 := verts[0], verts[1]
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	return EdgeKey(uint64(i1) | uint64(i2)<<32)
}

// Vertices returns the edge vertices, lowest index first
func (ek EdgeKey) Vertices() (verts [2]int) {
	verts[1] = int(ek >> 32)
	verts[0] = int(ek & math.MaxUint32)
	return
}

// Other returns the edge vertex that is not v
func (ek EdgeKey) Other(v int) int {
	verts := ek.Vertices()
	if verts[0] == v {
		return verts[1]
	}
	return verts[0]
}

// Has reports whether v is an endpoint of the edge
func (ek EdgeKey) Has(v int) bool {
	verts := ek.Vertices()
	return verts[0] == v || verts[1] == v
}
