// Package kernel defines the solid-modeling interface used to generate
// primitive geometry. A kernel builds solids from primitives, booleans and
// transforms, and meshes them to a triangle soup that the weld package turns
// into a control mesh. Backends can be swapped without touching callers.
package kernel

import "errors"

// ErrInvalidDimension is returned by primitive constructors given a
// non-positive size.
var ErrInvalidDimension = errors.New("kernel: dimension must be positive")

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives, centered on the origin.
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)
	Sphere(radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// ToSoup meshes the solid's surface.
	ToSoup(s Solid) (*Soup, error)
}
