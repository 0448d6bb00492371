package mesh

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

var elementTypeNames = [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}

func (e ElementType) String() string {
	if e < 0 || int(e) >= len(elementTypeNames) {
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
	return elementTypeNames[e]
}

// ParseElementType is the inverse of String.
func ParseElementType(s string) (ElementType, error) {
	for i, name := range elementTypeNames {
		if name == s {
			return ElementType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// NumVertices returns the number of corner vertices of the type.
func (e ElementType) NumVertices() int {
	return [...]int{2, 3, 4, 4, 8, 6, 5}[e]
}

// Dimension returns the topological dimension of the type.
func (e ElementType) Dimension() int {
	return [...]int{1, 2, 2, 3, 3, 3, 3}[e]
}

// IsSimplex is true for lines, triangles and tets.
func (e ElementType) IsSimplex() bool {
	return e == Line || e == Triangle || e == Tet
}

// Face represents a face of an element
type Face struct {
	Vertices []int // Sorted vertex indices
	Element  int   // Parent element
	LocalID  int   // Local face ID within element
}

// Mesh is an unstructured mixed element mesh whose elements are spread over
// NumPartitions partitions. An element slot holding a nil vertex list has
// been removed and is skipped by every query until Compact is called.
type Mesh struct {
	Dim int

	// Geometry and classification onto the geometric model, one per vertex
	Vertices       []r3.Vec
	Classification []Classification

	// Element data
	Elements     [][]int       // Element to vertex connectivity [nelems][nverts_per_elem]
	ElementTypes []ElementType // Element type for each element

	// Element to partition mapping
	EToP          []int
	NumPartitions int

	// MidEdgeNodes maps an edge to its mid-side vertex for quadratic meshes
	MidEdgeNodes map[EdgeKey]int

	// Connectivity (built by BuildConnectivity, invalidated by any mutation)
	EToE    [][]int
	EToF    [][]int
	Faces   []Face
	FaceMap map[string]int

	tags map[string]*Tag
}

// NewMesh creates an empty mesh of the given dimension with one partition
func NewMesh(dim int) *Mesh {
	return &Mesh{
		Dim:           dim,
		NumPartitions: 1,
		FaceMap:       make(map[string]int),
		tags:          make(map[string]*Tag),
	}
}

// Dimension returns the mesh dimension
func (m *Mesh) Dimension() int { return m.Dim }

// NumElements is the number of element slots, including removed ones.
func (m *Mesh) NumElements() int { return len(m.Elements) }

// NumVertices is the number of vertex slots.
func (m *Mesh) NumVertices() int { return len(m.Vertices) }

// AddVertex appends a vertex and returns its index
func (m *Mesh) AddVertex(x r3.Vec, c Classification) int {
	m.Vertices = append(m.Vertices, x)
	m.Classification = append(m.Classification, c)
	return len(m.Vertices) - 1
}

// AddElement appends an element in the given partition and returns its index
func (m *Mesh) AddElement(t ElementType, verts []int, part int) int {
	if len(verts) != t.NumVertices() {
		panic(fmt.Sprintf("%s needs %d vertices, got %d", t, t.NumVertices(), len(verts)))
	}
	v := make([]int, len(verts))
	copy(v, verts)
	m.Elements = append(m.Elements, v)
	m.ElementTypes = append(m.ElementTypes, t)
	m.EToP = append(m.EToP, part)
	return len(m.Elements) - 1
}

// RemoveElement marks an element slot dead
func (m *Mesh) RemoveElement(e int) {
	m.Elements[e] = nil
}

// IsAlive reports whether element slot e holds an element
func (m *Mesh) IsAlive(e int) bool {
	return m.Elements[e] != nil
}

// Type returns the element type
func (m *Mesh) Type(e int) ElementType { return m.ElementTypes[e] }

// IsSimplex reports whether element e is a simplex
func (m *Mesh) IsSimplex(e int) bool { return m.ElementTypes[e].IsSimplex() }

// IsQuadratic reports whether the mesh carries mid-edge nodes
func (m *Mesh) IsQuadratic() bool { return len(m.MidEdgeNodes) != 0 }

// Points returns the corner coordinates of element e
func (m *Mesh) Points(e int) []r3.Vec {
	verts := m.Elements[e]
	pts := make([]r3.Vec, len(verts))
	for i, v := range verts {
		pts[i] = m.Vertices[v]
	}
	return pts
}

// Centroid returns the vertex average of element e
func (m *Mesh) Centroid(e int) r3.Vec {
	return centroid(m.Points(e))
}

func centroid(pts []r3.Vec) (c r3.Vec) {
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	return r3.Scale(1/float64(len(pts)), c)
}

// Count returns the number of live entities of dimension dim
func (m *Mesh) Count(dim int) int {
	switch {
	case dim == 0:
		used := make([]bool, len(m.Vertices))
		n := 0
		for _, verts := range m.Elements {
			for _, v := range verts {
				if !used[v] {
					used[v] = true
					n++
				}
			}
		}
		return n
	case dim == 1:
		return len(m.Edges())
	case dim == m.Dim:
		n := 0
		for _, verts := range m.Elements {
			if verts != nil {
				n++
			}
		}
		return n
	case dim == 2 && m.Dim == 3:
		faces := make(map[string]struct{})
		for e, verts := range m.Elements {
			if verts == nil {
				continue
			}
			for _, f := range GetElementFaces(m.ElementTypes[e], verts) {
				faces[faceKey(f)] = struct{}{}
			}
		}
		return len(faces)
	}
	return 0
}

// Downward returns the entities of dimension dim bounding element e, each as
// a list of vertex indices. Faces of a prism start with its two triangles.
func (m *Mesh) Downward(e, dim int) [][]int {
	verts := m.Elements[e]
	t := m.ElementTypes[e]
	switch {
	case dim == 0:
		out := make([][]int, len(verts))
		for i, v := range verts {
			out[i] = []int{v}
		}
		return out
	case dim == 1:
		edges := GetElementEdges(t, verts)
		out := make([][]int, len(edges))
		for i, ed := range edges {
			out[i] = []int{ed[0], ed[1]}
		}
		return out
	case dim == t.Dimension():
		return [][]int{append([]int(nil), verts...)}
	case dim == 2:
		return GetElementFaces(t, verts)
	}
	return nil
}

// Edges returns every unique edge of the live elements in ascending key order
func (m *Mesh) Edges() []EdgeKey {
	seen := make(map[EdgeKey]struct{})
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		for _, ed := range GetElementEdges(m.ElementTypes[e], verts) {
			seen[NewEdgeKey(ed)] = struct{}{}
		}
	}
	keys := make([]EdgeKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// VertexUpward returns, for each vertex, the live elements using it
func (m *Mesh) VertexUpward() [][]int {
	up := make([][]int, len(m.Vertices))
	for e, verts := range m.Elements {
		for _, v := range verts {
			up[v] = append(up[v], e)
		}
	}
	return up
}

// Compact drops removed elements and unreferenced vertices, renumbering
// everything that remains. Element tags and connectivity do not survive.
func (m *Mesh) Compact() {
	var (
		newElems [][]int
		newTypes []ElementType
		newEToP  []int
	)
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		newElems = append(newElems, verts)
		newTypes = append(newTypes, m.ElementTypes[e])
		newEToP = append(newEToP, m.EToP[e])
	}
	used := make([]bool, len(m.Vertices))
	for _, verts := range newElems {
		for _, v := range verts {
			used[v] = true
		}
	}
	for _, mid := range m.MidEdgeNodes {
		used[mid] = true
	}
	remap := make([]int, len(m.Vertices))
	var (
		newVerts []r3.Vec
		newClass []Classification
	)
	for v := range m.Vertices {
		if !used[v] {
			remap[v] = -1
			continue
		}
		remap[v] = len(newVerts)
		newVerts = append(newVerts, m.Vertices[v])
		newClass = append(newClass, m.Classification[v])
	}
	for _, verts := range newElems {
		for i, v := range verts {
			verts[i] = remap[v]
		}
	}
	if m.MidEdgeNodes != nil {
		mids := make(map[EdgeKey]int, len(m.MidEdgeNodes))
		for k, mid := range m.MidEdgeNodes {
			ev := k.Vertices()
			if remap[ev[0]] < 0 || remap[ev[1]] < 0 {
				continue
			}
			mids[NewEdgeKey([2]int{remap[ev[0]], remap[ev[1]]})] = remap[mid]
		}
		m.MidEdgeNodes = mids
	}
	m.Elements, m.ElementTypes, m.EToP = newElems, newTypes, newEToP
	m.Vertices, m.Classification = newVerts, newClass
	m.EToE, m.EToF, m.Faces = nil, nil, nil
	m.FaceMap = make(map[string]int)
	m.tags = make(map[string]*Tag)
}

// Clone returns a deep copy of the mesh without tags or connectivity
func (m *Mesh) Clone() *Mesh {
	c := NewMesh(m.Dim)
	c.NumPartitions = m.NumPartitions
	c.Vertices = append([]r3.Vec(nil), m.Vertices...)
	c.Classification = append([]Classification(nil), m.Classification...)
	c.ElementTypes = append([]ElementType(nil), m.ElementTypes...)
	c.EToP = append([]int(nil), m.EToP...)
	c.Elements = make([][]int, len(m.Elements))
	for e, verts := range m.Elements {
		if verts != nil {
			c.Elements[e] = append([]int(nil), verts...)
		}
	}
	if m.MidEdgeNodes != nil {
		c.MidEdgeNodes = make(map[EdgeKey]int, len(m.MidEdgeNodes))
		for k, v := range m.MidEdgeNodes {
			c.MidEdgeNodes[k] = v
		}
	}
	return c
}

// BuildConnectivity builds element-to-element and face connectivity. In 2D
// the element edges play the role of faces.
func (m *Mesh) BuildConnectivity() {
	ne := len(m.Elements)
	m.EToE = make([][]int, ne)
	m.EToF = make([][]int, ne)
	m.Faces = m.Faces[:0]
	m.FaceMap = make(map[string]int)

	for elemID := 0; elemID < ne; elemID++ {
		vertices := m.Elements[elemID]
		if vertices == nil {
			continue
		}
		faceVertices := m.elementSides(elemID)

		m.EToE[elemID] = make([]int, len(faceVertices))
		m.EToF[elemID] = make([]int, len(faceVertices))

		// Initialize to -1 (boundary)
		for i := range m.EToE[elemID] {
			m.EToE[elemID][i] = -1
			m.EToF[elemID][i] = -1
		}

		for localFaceID, faceVerts := range faceVertices {
			key := faceKey(faceVerts)

			if faceID, exists := m.FaceMap[key]; exists {
				// Interior face
				face := &m.Faces[faceID]
				neighborElem := face.Element
				neighborLocalID := face.LocalID

				m.EToE[elemID][localFaceID] = neighborElem
				m.EToE[neighborElem][neighborLocalID] = elemID

				m.EToF[elemID][localFaceID] = faceID
				m.EToF[neighborElem][neighborLocalID] = faceID
			} else {
				sorted := append([]int(nil), faceVerts...)
				sort.Ints(sorted)
				face := Face{
					Vertices: sorted,
					Element:  elemID,
					LocalID:  localFaceID,
				}

				faceID := len(m.Faces)
				m.Faces = append(m.Faces, face)
				m.FaceMap[key] = faceID
				m.EToF[elemID][localFaceID] = faceID
			}
		}
	}
}

func (m *Mesh) elementSides(e int) [][]int {
	if m.ElementTypes[e].Dimension() == 3 {
		return GetElementFaces(m.ElementTypes[e], m.Elements[e])
	}
	return m.Downward(e, 1)
}

func faceKey(verts []int) string {
	sorted := append([]int(nil), verts...)
	sort.Ints(sorted)
	return fmt.Sprintf("%v", sorted)
}

// GetElementFaces returns the face vertices for each element type
func GetElementFaces(elemType ElementType, vertices []int) [][]int {
	switch elemType {
	case Tet:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]}, // Face 0
			{vertices[0], vertices[1], vertices[3]}, // Face 1
			{vertices[1], vertices[2], vertices[3]}, // Face 2
			{vertices[0], vertices[3], vertices[2]}, // Face 3
		}
	case Hex:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // Face 0 (bottom)
			{vertices[4], vertices[5], vertices[6], vertices[7]}, // Face 1 (top)
			{vertices[0], vertices[1], vertices[5], vertices[4]}, // Face 2
			{vertices[1], vertices[2], vertices[6], vertices[5]}, // Face 3
			{vertices[2], vertices[3], vertices[7], vertices[6]}, // Face 4
			{vertices[3], vertices[0], vertices[4], vertices[7]}, // Face 5
		}
	case Prism:
		return [][]int{
			{vertices[0], vertices[2], vertices[1]},              // Face 0 (bottom tri)
			{vertices[3], vertices[4], vertices[5]},              // Face 1 (top tri)
			{vertices[0], vertices[1], vertices[4], vertices[3]}, // Face 2 (quad)
			{vertices[1], vertices[2], vertices[5], vertices[4]}, // Face 3 (quad)
			{vertices[2], vertices[0], vertices[3], vertices[5]}, // Face 4 (quad)
		}
	case Pyramid:
		return [][]int{
			{vertices[0], vertices[3], vertices[2], vertices[1]}, // Face 0 (base quad)
			{vertices[0], vertices[1], vertices[4]},              // Face 1 (tri)
			{vertices[1], vertices[2], vertices[4]},              // Face 2 (tri)
			{vertices[2], vertices[3], vertices[4]},              // Face 3 (tri)
			{vertices[3], vertices[0], vertices[4]},              // Face 4 (tri)
		}
	default:
		return [][]int{}
	}
}

var elementEdges = map[ElementType][][2]int{
	Line:     {{0, 1}},
	Triangle: {{0, 1}, {1, 2}, {2, 0}},
	Quad:     {{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	Tet:      {{0, 1}, {1, 2}, {0, 2}, {0, 3}, {1, 3}, {2, 3}},
	Hex: {{0, 1}, {1, 2}, {2, 3}, {3, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7}},
	Prism:   {{0, 1}, {1, 2}, {2, 0}, {3, 4}, {4, 5}, {5, 3}, {0, 3}, {1, 4}, {2, 5}},
	Pyramid: {{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 4}, {1, 4}, {2, 4}, {3, 4}},
}

// GetElementEdges returns the edges of an element as vertex pairs
func GetElementEdges(elemType ElementType, vertices []int) [][2]int {
	local := elementEdges[elemType]
	out := make([][2]int, len(local))
	for i, ed := range local {
		out[i] = [2]int{vertices[ed[0]], vertices[ed[1]]}
	}
	return out
}

// LogStatistics logs entity counts, element types and the element count of
// every partition
func (m *Mesh) LogStatistics(logger *slog.Logger) {
	typeCounts := make(map[ElementType]int)
	partCounts := make([]int, m.NumPartitions)
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		typeCounts[m.ElementTypes[e]]++
		if p := m.EToP[e]; p >= 0 && p < len(partCounts) {
			partCounts[p]++
		}
	}
	args := []any{"dimension", m.Dim}
	for d := 0; d <= m.Dim; d++ {
		args = append(args, fmt.Sprintf("count%d", d), m.Count(d))
	}
	logger.Info("mesh statistics", args...)
	for t := Line; t <= Pyramid; t++ {
		if n := typeCounts[t]; n > 0 {
			logger.Info("element type", "type", t.String(), "count", n)
		}
	}
	if m.NumPartitions > 1 {
		logger.Info("elements per partition", "counts", partCounts)
	}
}
