package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// su2Types maps SU2 (VTK) element type ids
var su2Types = map[int]ElementType{
	3:  Line,
	5:  Triangle,
	9:  Quad,
	10: Tet,
	12: Hex,
	13: Prism,
	14: Pyramid,
}

// flips reverse the orientation of each element type
var flips = map[ElementType][]int{
	Triangle: {0, 2, 1},
	Quad:     {0, 3, 2, 1},
	Tet:      {0, 2, 1, 3},
	Prism:    {0, 2, 1, 3, 5, 4},
	Pyramid:  {0, 3, 2, 1, 4},
	Hex:      {0, 3, 2, 1, 4, 7, 6, 5},
}

// ReadSU2File reads an SU2 native format file
func ReadSU2File(filename string) (*Mesh, *PinnedBoundary, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return ReadSU2(file)
}

// ReadSU2 parses an SU2 mesh. Elements of lower dimension than NDIME are
// skipped, and elements with negative measure are reoriented. Vertices of
// the NMARK boundary markers are pinned on the returned model, marker i
// getting tag i+1.
func ReadSU2(r io.Reader) (*Mesh, *PinnedBoundary, error) {
	var (
		scanner = bufio.NewScanner(r)
		lineNum int
		m       *Mesh
		markers [][]int
	)
	next := func() (string, error) {
		for scanner.Scan() {
			lineNum++
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "%") {
				return line, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("line %d: unexpected end of file", lineNum)
	}
	count := func(line, key string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, key)))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("line %d: bad %s count %q", lineNum, key, line)
		}
		return n, nil
	}
	var elements [][]string
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "NDIME="):
			dim, err := count(line, "NDIME=")
			if err != nil {
				return nil, nil, err
			}
			if dim != 2 && dim != 3 {
				return nil, nil, fmt.Errorf("line %d: only 2D and 3D meshes are supported, got NDIME=%d", lineNum, dim)
			}
			m = NewMesh(dim)
		case strings.HasPrefix(line, "NELEM="):
			nelem, err := count(line, "NELEM=")
			if err != nil {
				return nil, nil, err
			}
			// kept until NPOIN is known, to check orientation
			for i := 0; i < nelem; i++ {
				l, err := next()
				if err != nil {
					return nil, nil, err
				}
				elements = append(elements, strings.Fields(l))
			}
		case strings.HasPrefix(line, "NPOIN="):
			if m == nil {
				return nil, nil, fmt.Errorf("line %d: NPOIN before NDIME", lineNum)
			}
			fields := strings.Fields(strings.TrimPrefix(line, "NPOIN="))
			if len(fields) == 0 {
				return nil, nil, fmt.Errorf("line %d: bad NPOIN count %q", lineNum, line)
			}
			npoin, err := count(fields[0], "")
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < npoin; i++ {
				l, err := next()
				if err != nil {
					return nil, nil, err
				}
				f := strings.Fields(l)
				if len(f) < m.Dim {
					return nil, nil, fmt.Errorf("line %d: point needs %d coordinates", lineNum, m.Dim)
				}
				c, err := parseFloats(f[:m.Dim])
				if err != nil {
					return nil, nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				x := r3.Vec{X: c[0], Y: c[1]}
				if m.Dim == 3 {
					x.Z = c[2]
				}
				m.AddVertex(x, Classification{Dim: m.Dim})
			}
		case strings.HasPrefix(line, "NMARK="):
			nmark, err := count(line, "NMARK=")
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < nmark; i++ {
				if _, err = next(); err != nil { // MARKER_TAG
					return nil, nil, err
				}
				l, err := next()
				if err != nil {
					return nil, nil, err
				}
				n, err := count(l, "MARKER_ELEMS=")
				if err != nil {
					return nil, nil, err
				}
				var verts []int
				for j := 0; j < n; j++ {
					l, err := next()
					if err != nil {
						return nil, nil, err
					}
					ids, err := parseInts(strings.Fields(l))
					if err != nil {
						return nil, nil, fmt.Errorf("line %d: %w", lineNum, err)
					}
					if len(ids) > 1 {
						verts = append(verts, ids[1:]...)
					}
				}
				markers = append(markers, verts)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, fmt.Errorf("no NDIME line")
	}
	for _, f := range elements {
		if err := m.addSU2Element(f); err != nil {
			return nil, nil, err
		}
	}
	model := &PinnedBoundary{Dim: m.Dim}
	for i, verts := range markers {
		for _, v := range verts {
			if v < 0 || v >= len(m.Vertices) {
				return nil, nil, fmt.Errorf("marker %d: vertex %d out of range", i, v)
			}
			m.Classification[v] = Classification{Dim: 0, Tag: i + 1}
		}
	}
	return m, model, nil
}

func (m *Mesh) addSU2Element(fields []string) error {
	ids, err := parseInts(fields)
	if err != nil {
		return err
	}
	if len(ids) < 2 {
		return fmt.Errorf("element line %v is too short", fields)
	}
	t, ok := su2Types[ids[0]]
	if !ok {
		return fmt.Errorf("unknown SU2 element type %d", ids[0])
	}
	if t.Dimension() != m.Dim {
		return nil
	}
	n := t.NumVertices()
	if len(ids) < n+1 {
		return fmt.Errorf("%s needs %d vertices, got %d", t, n, len(ids)-1)
	}
	verts := ids[1 : n+1]
	for _, v := range verts {
		if v < 0 || v >= len(m.Vertices) {
			return fmt.Errorf("%s vertex %d out of range", t, v)
		}
	}
	e := m.AddElement(t, verts, 0)
	if signedMeasure(t, m.Points(e)) < 0 {
		flipped := make([]int, n)
		for i, j := range flips[t] {
			flipped[i] = verts[j]
		}
		m.Elements[e] = flipped
	}
	return nil
}

// signedMeasure is positive for elements in the builders' orientation
func signedMeasure(t ElementType, pts []r3.Vec) (s float64) {
	switch t {
	case Triangle:
		return Orient2D(pts[0], pts[1], pts[2])
	case Quad:
		return Orient2D(pts[0], pts[1], pts[2]) + Orient2D(pts[0], pts[2], pts[3])
	}
	for _, tet := range measureTets[t] {
		s += Orient3D(pts[tet[0]], pts[tet[1]], pts[tet[2]], pts[tet[3]])
	}
	return
}
