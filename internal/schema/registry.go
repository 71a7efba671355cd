package schema

// CollectionShape distinguishes the two storage layouts an entity
// collection can use inside the state tree.
type CollectionShape int

const (
	// ShapeArray stores entities as an ordered slice keyed by id.
	ShapeArray CollectionShape = iota
	// ShapeMap stores entities id-keyed with no ordering.
	ShapeMap
)

// Collection describes one mergeable entity collection. The merge layer
// never branches on collection names; everything it needs to know about
// a collection lives here.
type Collection struct {
	// Name matches the JSON key of the collection in State.
	Name string

	// Shape reports how the collection is laid out in State.
	Shape CollectionShape

	// Shareable marks collections the shared-resource listing can
	// carry. Revocation pruning applies only to these; entities in
	// other collections are never dropped by a listing pass.
	Shareable bool

	// Get snapshots the collection as a flat entity slice. For
	// ShapeArray the local ordering is preserved.
	Get func(s *State) []Entity

	// Set installs a merged entity slice back into the state.
	Set func(s *State, items []Entity)
}

// Collections is the registry of every collection the merge and
// reconciliation layers track. Adding a new synchronized entity type
// means adding one entry here.
var Collections = []Collection{
	{
		Name:      "spaces",
		Shape:     ShapeArray,
		Shareable: true,
		Get: func(s *State) []Entity {
			out := make([]Entity, len(s.Spaces))
			for i, v := range s.Spaces {
				out[i] = v
			}
			return out
		},
		Set: func(s *State, items []Entity) {
			s.Spaces = make([]*Space, 0, len(items))
			for _, e := range items {
				if v, ok := e.(*Space); ok {
					s.Spaces = append(s.Spaces, v)
				}
			}
		},
	},
	{
		Name:      "folders",
		Shape:     ShapeArray,
		Shareable: true,
		Get: func(s *State) []Entity {
			out := make([]Entity, len(s.Folders))
			for i, v := range s.Folders {
				out[i] = v
			}
			return out
		},
		Set: func(s *State, items []Entity) {
			s.Folders = make([]*Folder, 0, len(items))
			for _, e := range items {
				if v, ok := e.(*Folder); ok {
					s.Folders = append(s.Folders, v)
				}
			}
		},
	},
	{
		Name:      "lists",
		Shape:     ShapeArray,
		Shareable: true,
		Get: func(s *State) []Entity {
			out := make([]Entity, len(s.Lists))
			for i, v := range s.Lists {
				out[i] = v
			}
			return out
		},
		Set: func(s *State, items []Entity) {
			s.Lists = make([]*List, 0, len(items))
			for _, e := range items {
				if v, ok := e.(*List); ok {
					s.Lists = append(s.Lists, v)
				}
			}
		},
	},
	{
		Name:      "tasks",
		Shape:     ShapeMap,
		Shareable: true,
		Get: func(s *State) []Entity {
			out := make([]Entity, 0, len(s.Tasks))
			for _, v := range s.Tasks {
				out = append(out, v)
			}
			return out
		},
		Set: func(s *State, items []Entity) {
			s.Tasks = make(map[string]*Task, len(items))
			for _, e := range items {
				if v, ok := e.(*Task); ok {
					s.Tasks[v.ID] = v
				}
			}
		},
	},
	{
		Name:  "docs",
		Shape: ShapeArray,
		Get: func(s *State) []Entity {
			out := make([]Entity, len(s.Docs))
			for i, v := range s.Docs {
				out[i] = v
			}
			return out
		},
		Set: func(s *State, items []Entity) {
			s.Docs = make([]*Doc, 0, len(items))
			for _, e := range items {
				if v, ok := e.(*Doc); ok {
					s.Docs = append(s.Docs, v)
				}
			}
		},
	},
}

// CollectionByName looks up a registry entry. Returns nil when the
// collection is not tracked.
func CollectionByName(name string) *Collection {
	for i := range Collections {
		if Collections[i].Name == name {
			return &Collections[i]
		}
	}
	return nil
}
