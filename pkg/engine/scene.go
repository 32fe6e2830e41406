package engine

import "github.com/chazu/subdiv/pkg/control"

// DefaultMeshName names the mesh that receives geometry before any
// (mesh "...") call.
const DefaultMeshName = "default"

// NamedMesh is one control mesh built by a script.
type NamedMesh struct {
	Name string
	Mesh *control.Mesh
}

// Scene holds every mesh a script built, in creation order.
type Scene struct {
	Meshes []*NamedMesh
}

// Lookup returns the mesh called name, or nil.
func (s *Scene) Lookup(name string) *NamedMesh {
	for _, nm := range s.Meshes {
		if nm.Name == name {
			return nm
		}
	}
	return nil
}

// Len returns the number of meshes.
func (s *Scene) Len() int { return len(s.Meshes) }
