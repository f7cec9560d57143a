package model

// EntityKind enumerates the local record types the engine can govern.
type EntityKind string

const (
	KindIdentity      EntityKind = "identity"
	KindRole          EntityKind = "role"
	KindTreeNode      EntityKind = "tree-node"
	KindContract      EntityKind = "contract"
	KindContractSlice EntityKind = "contract-slice"
	KindIdentityRole  EntityKind = "identity-role"
	KindRoleCatalogue EntityKind = "role-catalogue"
)

// EntityKinds returns all governed kinds in a stable order.
func EntityKinds() []EntityKind {
	return []EntityKind{
		KindIdentity,
		KindRole,
		KindTreeNode,
		KindContract,
		KindContractSlice,
		KindIdentityRole,
		KindRoleCatalogue,
	}
}

// Entity is one local identity record. Properties live directly on the
// record; Extended holds attributes stored outside the primary record.
type Entity struct {
	ID         string         `json:"id"`
	Kind       EntityKind     `json:"kind"`
	Properties map[string]any `json:"properties,omitempty"`
	Extended   map[string]any `json:"extended,omitempty"`
	Disabled   bool           `json:"disabled,omitempty"`
}

// Property reads a direct or extended property, direct taking precedence.
func (e *Entity) Property(name string) (any, bool) {
	if v, ok := e.Properties[name]; ok {
		return v, true
	}
	v, ok := e.Extended[name]
	return v, ok
}

// SetProperty writes a value to the right side of the record.
func (e *Entity) SetProperty(name string, value any, extended bool) {
	if extended {
		if e.Extended == nil {
			e.Extended = make(map[string]any)
		}
		e.Extended[name] = value
		return
	}
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[name] = value
}

// RoleRef identifies a role contributing an attribute override. Priority
// decides which override wins when several target the same schema attribute.
type RoleRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// RoleAssignment ties an entity to a role; role-derived account links point
// back at the assignment that produced them.
type RoleAssignment struct {
	ID       string `json:"id"`
	EntityID string `json:"entityId"`
	Role     RoleRef `json:"role"`
}
