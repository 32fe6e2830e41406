// Package render flattens a control mesh into GPU-ready buffers: positions,
// smooth vertex normals, a fan-triangulated index list and wireframe lines.
// Every incidence query goes through the mesh's TopologyCache.
package render

import (
	"github.com/chazu/subdiv/pkg/control"
	"github.com/go-gl/mathgl/mgl32"
)

// Up is the normal given to degenerate faces and to vertices whose
// accumulated normal vanishes.
var Up = mgl32.Vec3{0, 1, 0}

// newell returns the unnormalized polygon normal of the corners vs. Its
// length is twice the polygon area, so summing these weights by area.
func newell(pos []mgl32.Vec3, vs []control.VertexIndex) mgl32.Vec3 {
	var n mgl32.Vec3
	for i, v := range vs {
		p, q := pos[v], pos[vs[(i+1)%len(vs)]]
		n[0] += (p[1] - q[1]) * (p[2] + q[2])
		n[1] += (p[2] - q[2]) * (p[0] + q[0])
		n[2] += (p[0] - q[0]) * (p[1] + q[1])
	}
	return n
}

func unitOrUp(n mgl32.Vec3) mgl32.Vec3 {
	l := n.Len()
	if l < 1e-12 {
		return Up
	}
	return n.Mul(1 / l)
}

// FaceNormals returns one unit normal per face.
func FaceNormals(m *control.Mesh, c *control.TopologyCache) []mgl32.Vec3 {
	pos := m.Positions()
	out := make([]mgl32.Vec3, c.NumFaces())
	for f := range out {
		out[f] = unitOrUp(newell(pos, c.FaceVertices(control.FaceIndex(f))))
	}
	return out
}

// VertexNormals returns one unit normal per vertex, the area-weighted average
// of its incident face normals.
func VertexNormals(m *control.Mesh, c *control.TopologyCache) []mgl32.Vec3 {
	pos := m.Positions()
	area := make([]mgl32.Vec3, c.NumFaces())
	for f := range area {
		area[f] = newell(pos, c.FaceVertices(control.FaceIndex(f)))
	}
	out := make([]mgl32.Vec3, c.NumVertices())
	for v := range out {
		var sum mgl32.Vec3
		for _, f := range c.VertexFaces(control.VertexIndex(v)) {
			sum = sum.Add(area[f])
		}
		out[v] = unitOrUp(sum)
	}
	return out
}
