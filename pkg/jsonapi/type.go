package jsonapi

// Type describes one resource type to the renderer: identity extraction,
// attribute projection and relationship enumeration. Collaborators supply
// one per resource.
type Type struct {
	Name       string
	ID         func(entity any) string
	Attributes func(entity any) map[string]any

	// Relationships in declaration order; the renderer walks them for
	// relationship blocks and for gathering included resources.
	Relationships []Relationship
}

// Relationship declares one named relation and how to enumerate the directly
// related resources of an entity, already projected to wire form.
type Relationship struct {
	Name    string
	Related func(entity any) []Resource
}

// resource projects an entity to wire form, honoring a sparse field
// selection (nil means all fields).
func (t Type) resource(entity any, fields map[string][]string) Resource {
	attrs := t.Attributes(entity)
	if selected, ok := fields[t.Name]; ok {
		projected := make(map[string]any, len(selected))
		for _, name := range selected {
			if v, present := attrs[name]; present {
				projected[name] = v
			}
		}
		attrs = projected
	}
	res := Resource{Type: t.Name, ID: t.ID(entity), Attributes: attrs}
	for _, rel := range t.Relationships {
		related := rel.Related(entity)
		linkage := make([]Linkage, 0, len(related))
		for _, r := range related {
			linkage = append(linkage, Linkage{Type: r.Type, ID: r.ID})
		}
		if res.Relationships == nil {
			res.Relationships = map[string]RelationshipData{}
		}
		res.Relationships[rel.Name] = RelationshipData{Data: linkage}
	}
	return res
}
