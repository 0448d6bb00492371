package adapt

import (
	"errors"
	"fmt"

	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
)

var (
	// ErrEmptyMesh marks a mesh whose element or vertex count reached zero
	ErrEmptyMesh = errors.New("mesh is empty")
	// ErrUnsafeLayerElement marks a layer element left without a valid
	// split into simplices
	ErrUnsafeLayerElement = errors.New("unsafe layer element")
	// ErrInvalidInput is wrapped by every ValidateInput failure
	ErrInvalidInput = errors.New("invalid adaptation input")
)

// StructuralError is fatal: the mesh can no longer be adapted
type StructuralError struct {
	Stage    string
	Elements int
	Vertices int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %d elements, %d vertices: %v", e.Stage, e.Elements, e.Vertices, ErrEmptyMesh)
}

func (e *StructuralError) Unwrap() error { return ErrEmptyMesh }

// GeometricError identifies the layer element that could not be converted
// to simplices
type GeometricError struct {
	Element  int
	Type     mesh.ElementType
	Good     uint8 // valid prism diagonal codes
	Rotation shape.Rotation
	Err      error
}

func (e *GeometricError) Error() string {
	msg := fmt.Sprintf("%v: %s %d", ErrUnsafeLayerElement, e.Type, e.Element)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *GeometricError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnsafeLayerElement}
	}
	return []error{ErrUnsafeLayerElement, e.Err}
}

// IsFatal reports whether err ends the run: structural and geometric
// failures do, everything else is tolerated and logged
func IsFatal(err error) bool {
	return errors.Is(err, ErrEmptyMesh) || errors.Is(err, ErrUnsafeLayerElement)
}
