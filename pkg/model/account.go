package model

// Account is the local anchor for one external identity on one system.
type Account struct {
	ID             string `json:"id"`
	UID            string `json:"uid"`
	SystemID       string `json:"systemId"`
	SystemEntityID string `json:"systemEntityId,omitempty"`
	Type           string `json:"type,omitempty"`
}

// SystemEntity is the external identity independent of local linkage,
// unique per (system, entityKind, uid). Wish marks an entity the engine
// intends to create on the target but has not yet confirmed there.
type SystemEntity struct {
	ID       string     `json:"id"`
	SystemID string     `json:"systemId"`
	Kind     EntityKind `json:"kind"`
	UID      string     `json:"uid"`
	Wish     bool       `json:"wish,omitempty"`
}

// EntityAccountLink ties a local entity to an Account. A link with
// Ownership=true is the only kind that cascades deletion of the Account
// once no other ownership link remains. Role-derived links reference the
// assignment that produced them.
type EntityAccountLink struct {
	ID               string `json:"id"`
	EntityID         string `json:"entityId"`
	AccountID        string `json:"accountId"`
	Ownership        bool   `json:"ownership"`
	RoleAssignmentID string `json:"roleAssignmentId,omitempty"`
}
