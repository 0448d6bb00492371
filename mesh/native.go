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

/*
The native format is a line oriented text file:

	# Partitioned Mesh
	# Dimension: 3
	# Vertices: 8
	# Elements: 6
	# Partitions: 2
	MODEL xmin ymin zmin xmax ymax zmax
	VERTICES 8
	0 0.000000 0.000000 0.000000
	...
	ELEMENTS 6
	0 Tet 1 0 1 2 6 [quality]
	...
	MIDEDGE n
	a b node

MODEL and MIDEDGE are optional. A trailing column after the element
vertices holds the element quality in debug dumps and is ignored on read.
*/

// WriteNativeFile writes the mesh to filename in the native format
func WriteNativeFile(filename string, m *Mesh, box *r3.Box, qualities []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	if err = WriteNative(w, m, box, qualities); err != nil {
		return err
	}
	return w.Flush()
}

// WriteNative writes the live elements of m. qualities, when not nil, is
// indexed by element slot and appended to each element line.
func WriteNative(w io.Writer, m *Mesh, box *r3.Box, qualities []float64) error {
	var werr error
	printf := func(format string, args ...any) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}
	printf("# Partitioned Mesh\n")
	printf("# Dimension: %d\n", m.Dim)
	printf("# Vertices: %d\n", len(m.Vertices))
	printf("# Elements: %d\n", m.Count(m.Dim))
	printf("# Partitions: %d\n", m.NumPartitions)
	if box != nil {
		printf("MODEL %g %g %g %g %g %g\n",
			box.Min.X, box.Min.Y, box.Min.Z, box.Max.X, box.Max.Y, box.Max.Z)
	}
	printf("VERTICES %d\n", len(m.Vertices))
	for i, v := range m.Vertices {
		printf("%d %.15g %.15g %.15g\n", i, v.X, v.Y, v.Z)
	}
	printf("ELEMENTS %d\n", m.Count(m.Dim))
	id := 0
	for e, verts := range m.Elements {
		if verts == nil {
			continue
		}
		printf("%d %s %d", id, m.ElementTypes[e], m.EToP[e])
		for _, v := range verts {
			printf(" %d", v)
		}
		if qualities != nil {
			printf(" %.6g", qualities[e])
		}
		printf("\n")
		id++
	}
	if len(m.MidEdgeNodes) != 0 {
		printf("MIDEDGE %d\n", len(m.MidEdgeNodes))
		for _, ek := range m.Edges() {
			if mid, ok := m.MidEdgeNodes[ek]; ok {
				ev := ek.Vertices()
				printf("%d %d %d\n", ev[0], ev[1], mid)
			}
		}
	}
	return werr
}

// ReadNativeFile reads a native format mesh file
func ReadNativeFile(filename string) (*Mesh, *BoxModel, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return ReadNative(file)
}

// ReadNative parses the native format. The returned model is nil when the
// file carries no MODEL line; vertices are then classified as interior.
func ReadNative(r io.Reader) (*Mesh, *BoxModel, error) {
	var (
		scanner = bufio.NewScanner(r)
		lineNum int
		m       = NewMesh(3)
		model   *BoxModel
		parts   = 1
	)
	next := func() ([]string, bool) {
		for scanner.Scan() {
			lineNum++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "#") {
				key, val, found := strings.Cut(strings.TrimSpace(line[1:]), ":")
				if !found {
					continue
				}
				n, err := strconv.Atoi(strings.TrimSpace(val))
				if err != nil {
					continue
				}
				switch strings.TrimSpace(key) {
				case "Dimension":
					m.Dim = n
				case "Partitions":
					parts = n
				}
				continue
			}
			return strings.Fields(line), true
		}
		return nil, false
	}
	parseErr := func(format string, args ...any) error {
		return fmt.Errorf("line %d: %s", lineNum, fmt.Sprintf(format, args...))
	}
	count := func(fields []string) (int, error) {
		if len(fields) != 2 {
			return 0, parseErr("expected %s <count>", fields[0])
		}
		return strconv.Atoi(fields[1])
	}

	for {
		fields, ok := next()
		if !ok {
			break
		}
		switch fields[0] {
		case "MODEL":
			if len(fields) != 7 {
				return nil, nil, parseErr("MODEL needs 6 coordinates")
			}
			c, err := parseFloats(fields[1:])
			if err != nil {
				return nil, nil, parseErr("%v", err)
			}
			model = NewBoxModel(r3.Box{
				Min: r3.Vec{X: c[0], Y: c[1], Z: c[2]},
				Max: r3.Vec{X: c[3], Y: c[4], Z: c[5]},
			}, m.Dim)
		case "VERTICES":
			n, err := count(fields)
			if err != nil {
				return nil, nil, parseErr("%v", err)
			}
			for i := 0; i < n; i++ {
				vf, ok := next()
				if !ok || len(vf) < 4 {
					return nil, nil, parseErr("vertex %d: expected id x y z", i)
				}
				c, err := parseFloats(vf[1:4])
				if err != nil {
					return nil, nil, parseErr("vertex %d: %v", i, err)
				}
				m.AddVertex(r3.Vec{X: c[0], Y: c[1], Z: c[2]}, Classification{Dim: m.Dim})
			}
		case "ELEMENTS":
			n, err := count(fields)
			if err != nil {
				return nil, nil, parseErr("%v", err)
			}
			for i := 0; i < n; i++ {
				ef, ok := next()
				if !ok || len(ef) < 3 {
					return nil, nil, parseErr("element %d: expected id type partition vertices", i)
				}
				t, err := ParseElementType(ef[1])
				if err != nil {
					return nil, nil, parseErr("element %d: %v", i, err)
				}
				part, err := strconv.Atoi(ef[2])
				if err != nil {
					return nil, nil, parseErr("element %d: %v", i, err)
				}
				if len(ef) < 3+t.NumVertices() {
					return nil, nil, parseErr("element %d: %s needs %d vertices", i, t, t.NumVertices())
				}
				verts, err := parseInts(ef[3 : 3+t.NumVertices()])
				if err != nil {
					return nil, nil, parseErr("element %d: %v", i, err)
				}
				for _, v := range verts {
					if v < 0 || v >= len(m.Vertices) {
						return nil, nil, parseErr("element %d: vertex %d out of range", i, v)
					}
				}
				m.AddElement(t, verts, part)
			}
		case "MIDEDGE":
			n, err := count(fields)
			if err != nil {
				return nil, nil, parseErr("%v", err)
			}
			m.MidEdgeNodes = make(map[EdgeKey]int, n)
			for i := 0; i < n; i++ {
				mf, ok := next()
				if !ok || len(mf) != 3 {
					return nil, nil, parseErr("mid-edge node %d: expected a b node", i)
				}
				ids, err := parseInts(mf)
				if err != nil {
					return nil, nil, parseErr("mid-edge node %d: %v", i, err)
				}
				m.MidEdgeNodes[NewEdgeKey([2]int{ids[0], ids[1]})] = ids[2]
			}
		default:
			return nil, nil, parseErr("unexpected section %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	m.NumPartitions = parts
	for e, p := range m.EToP {
		if p < 0 || p >= parts {
			return nil, nil, fmt.Errorf("element %d: partition %d out of range [0,%d)", e, p, parts)
		}
	}
	if model != nil {
		model.Dim = m.Dim
		m.Classify(model)
	} else {
		for i := range m.Classification {
			m.Classification[i] = Classification{Dim: m.Dim}
		}
	}
	return m, model, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
