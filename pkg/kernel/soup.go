package kernel

import "github.com/go-gl/mathgl/mgl32"

// Triangle is three corner positions in counter-clockwise order seen from
// outside the solid.
type Triangle [3]mgl32.Vec3

// Normal returns the unit normal, or the zero vector for a degenerate
// triangle.
func (t Triangle) Normal() mgl32.Vec3 {
	n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl32.Vec3{}
}

// Area returns the triangle's area.
func (t Triangle) Area() float32 {
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Len() / 2
}

// Soup is an unindexed triangle list: no sharing, no adjacency.
type Soup struct {
	Triangles []Triangle
}

// TriangleCount returns the number of triangles.
func (s *Soup) TriangleCount() int {
	return len(s.Triangles)
}

// IsEmpty returns true if the soup has no geometry.
func (s *Soup) IsEmpty() bool {
	return len(s.Triangles) == 0
}

// Bounds returns the component-wise min and max corner over every triangle.
// An empty soup returns two zero vectors.
func (s *Soup) Bounds() (lo, hi mgl32.Vec3) {
	if s.IsEmpty() {
		return lo, hi
	}
	lo, hi = s.Triangles[0][0], s.Triangles[0][0]
	for _, t := range s.Triangles {
		for _, p := range t {
			for i := 0; i < 3; i++ {
				lo[i] = min(lo[i], p[i])
				hi[i] = max(hi[i], p[i])
			}
		}
	}
	return lo, hi
}
