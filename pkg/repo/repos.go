package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/google/uuid"
)

// Repositories bundles the typed accessors the engine needs over one Store.
type Repositories struct {
	Store Store

	Systems         *SystemRepo
	Mappings        *MappingRepo
	Overrides       *OverrideRepo
	RoleAssignments *RoleAssignmentRepo
	Accounts        *AccountRepo
	SystemEntities  *SystemEntityRepo
	Links           *LinkRepo
	Entities        *EntityRepo
	SyncConfigs     *SyncConfigRepo
	SyncLogs        *SyncLogRepo
	ItemLogs        *ItemLogRepo
	ActionLogs      *ActionLogRepo
}

func NewRepositories(store Store) *Repositories {
	return &Repositories{
		Store:           store,
		Systems:         &SystemRepo{store},
		Mappings:        &MappingRepo{store},
		Overrides:       &OverrideRepo{store},
		RoleAssignments: &RoleAssignmentRepo{store},
		Accounts:        &AccountRepo{store},
		SystemEntities:  &SystemEntityRepo{store},
		Links:           &LinkRepo{store},
		Entities:        &EntityRepo{store},
		SyncConfigs:     &SyncConfigRepo{store},
		SyncLogs:        &SyncLogRepo{store},
		ItemLogs:        &ItemLogRepo{store},
		ActionLogs:      &ActionLogRepo{store},
	}
}

// NewID mints a record id.
func NewID() string { return uuid.NewString() }

func find[T any](ctx context.Context, s Store, kind string, match func(*T) bool) ([]T, error) {
	raws, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", kind, err)
		}
		if match == nil || match(&rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func getOne[T any](ctx context.Context, s Store, kind, id string) (*T, error) {
	var rec T
	if err := s.Get(ctx, kind, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

type SystemRepo struct{ store Store }

func (r *SystemRepo) Get(ctx context.Context, id string) (*model.System, error) {
	return getOne[model.System](ctx, r.store, KindSystems, id)
}

func (r *SystemRepo) Save(ctx context.Context, s *model.System) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	return r.store.Put(ctx, KindSystems, s.ID, s)
}

func (r *SystemRepo) List(ctx context.Context) ([]model.System, error) {
	return find[model.System](ctx, r.store, KindSystems, nil)
}

type MappingRepo struct{ store Store }

func (r *MappingRepo) Get(ctx context.Context, id string) (*model.SystemMapping, error) {
	return getOne[model.SystemMapping](ctx, r.store, KindSystemMappings, id)
}

func (r *MappingRepo) Save(ctx context.Context, m *model.SystemMapping) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return r.store.Put(ctx, KindSystemMappings, m.ID, m)
}

func (r *MappingRepo) List(ctx context.Context) ([]model.SystemMapping, error) {
	return find[model.SystemMapping](ctx, r.store, KindSystemMappings, nil)
}

// ByTriple finds the system mapping for (system, entityKind, operation).
// Exactly one must exist; zero means mapping absent, more is ambiguous.
func (r *MappingRepo) ByTriple(ctx context.Context, systemID string, kind model.EntityKind, op model.OperationKind) (*model.SystemMapping, error) {
	found, err := find[model.SystemMapping](ctx, r.store, KindSystemMappings, func(m *model.SystemMapping) bool {
		return m.SystemID == systemID && m.EntityKind == kind && m.Operation == op
	})
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("ambiguous system mapping for system %s kind %s op %s", systemID, kind, op)
	}
}

type OverrideRepo struct{ store Store }

func (r *OverrideRepo) Save(ctx context.Context, o *model.RoleAttributeOverride) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	return r.store.Put(ctx, KindRoleOverrides, o.ID, o)
}

// ForRoles returns overrides contributed to one system by any of the roles.
func (r *OverrideRepo) ForRoles(ctx context.Context, systemID string, roleIDs []string) ([]model.RoleAttributeOverride, error) {
	roles := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		roles[id] = true
	}
	return find[model.RoleAttributeOverride](ctx, r.store, KindRoleOverrides, func(o *model.RoleAttributeOverride) bool {
		return o.SystemID == systemID && roles[o.Role.ID]
	})
}

// ForEntity resolves the entity's role assignments and collects their
// overrides for the system.
func (r *OverrideRepo) ForEntity(ctx context.Context, entityID, systemID string) ([]model.RoleAttributeOverride, error) {
	assignments, err := find[model.RoleAssignment](ctx, r.store, KindRoleAssigns, func(a *model.RoleAssignment) bool {
		return a.EntityID == entityID
	})
	if err != nil {
		return nil, err
	}
	roleIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roleIDs = append(roleIDs, a.Role.ID)
	}
	return r.ForRoles(ctx, systemID, roleIDs)
}

type RoleAssignmentRepo struct{ store Store }

func (r *RoleAssignmentRepo) Get(ctx context.Context, id string) (*model.RoleAssignment, error) {
	return getOne[model.RoleAssignment](ctx, r.store, KindRoleAssigns, id)
}

func (r *RoleAssignmentRepo) Save(ctx context.Context, a *model.RoleAssignment) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return r.store.Put(ctx, KindRoleAssigns, a.ID, a)
}

func (r *RoleAssignmentRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, KindRoleAssigns, id)
}

type AccountRepo struct{ store Store }

func (r *AccountRepo) Get(ctx context.Context, id string) (*model.Account, error) {
	return getOne[model.Account](ctx, r.store, KindAccounts, id)
}

func (r *AccountRepo) Save(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return r.store.Put(ctx, KindAccounts, a.ID, a)
}

func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, KindAccounts, id)
}

// ByUID finds the account anchored to (system, uid), or nil.
func (r *AccountRepo) ByUID(ctx context.Context, systemID, uid string) (*model.Account, error) {
	found, err := find[model.Account](ctx, r.store, KindAccounts, func(a *model.Account) bool {
		return a.SystemID == systemID && a.UID == uid
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *AccountRepo) BySystem(ctx context.Context, systemID string) ([]model.Account, error) {
	return find[model.Account](ctx, r.store, KindAccounts, func(a *model.Account) bool {
		return a.SystemID == systemID
	})
}

type SystemEntityRepo struct{ store Store }

func (r *SystemEntityRepo) Get(ctx context.Context, id string) (*model.SystemEntity, error) {
	return getOne[model.SystemEntity](ctx, r.store, KindSystemEntities, id)
}

func (r *SystemEntityRepo) Save(ctx context.Context, se *model.SystemEntity) error {
	if se.ID == "" {
		se.ID = NewID()
	}
	return r.store.Put(ctx, KindSystemEntities, se.ID, se)
}

func (r *SystemEntityRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, KindSystemEntities, id)
}

// ByUID finds the system entity for the unique (system, kind, uid) triple.
func (r *SystemEntityRepo) ByUID(ctx context.Context, systemID string, kind model.EntityKind, uid string) (*model.SystemEntity, error) {
	found, err := find[model.SystemEntity](ctx, r.store, KindSystemEntities, func(se *model.SystemEntity) bool {
		return se.SystemID == systemID && se.Kind == kind && se.UID == uid
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

type LinkRepo struct{ store Store }

func (r *LinkRepo) Save(ctx context.Context, l *model.EntityAccountLink) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return r.store.Put(ctx, KindEntityLinks, l.ID, l)
}

func (r *LinkRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, KindEntityLinks, id)
}

func (r *LinkRepo) ByAccount(ctx context.Context, accountID string) ([]model.EntityAccountLink, error) {
	return find[model.EntityAccountLink](ctx, r.store, KindEntityLinks, func(l *model.EntityAccountLink) bool {
		return l.AccountID == accountID
	})
}

func (r *LinkRepo) ByEntity(ctx context.Context, entityID string) ([]model.EntityAccountLink, error) {
	return find[model.EntityAccountLink](ctx, r.store, KindEntityLinks, func(l *model.EntityAccountLink) bool {
		return l.EntityID == entityID
	})
}

type EntityRepo struct{ store Store }

func (r *EntityRepo) Get(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	return getOne[model.Entity](ctx, r.store, EntityKindPrefix(string(kind)), id)
}

func (r *EntityRepo) Save(ctx context.Context, e *model.Entity) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return r.store.Put(ctx, EntityKindPrefix(string(e.Kind)), e.ID, e)
}

func (r *EntityRepo) Delete(ctx context.Context, kind model.EntityKind, id string) error {
	return r.store.Delete(ctx, EntityKindPrefix(string(kind)), id)
}

func (r *EntityRepo) Find(ctx context.Context, kind model.EntityKind, match func(*model.Entity) bool) ([]model.Entity, error) {
	return find[model.Entity](ctx, r.store, EntityKindPrefix(string(kind)), match)
}

type SyncConfigRepo struct{ store Store }

func (r *SyncConfigRepo) Get(ctx context.Context, id string) (*model.SyncConfig, error) {
	return getOne[model.SyncConfig](ctx, r.store, KindSyncConfigs, id)
}

func (r *SyncConfigRepo) Save(ctx context.Context, c *model.SyncConfig) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return r.store.Put(ctx, KindSyncConfigs, c.ID, c)
}

func (r *SyncConfigRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, KindSyncConfigs, id)
}

func (r *SyncConfigRepo) List(ctx context.Context) ([]model.SyncConfig, error) {
	return find[model.SyncConfig](ctx, r.store, KindSyncConfigs, nil)
}

type SyncLogRepo struct{ store Store }

func (r *SyncLogRepo) Get(ctx context.Context, id string) (*model.SyncLog, error) {
	return getOne[model.SyncLog](ctx, r.store, KindSyncLogs, id)
}

func (r *SyncLogRepo) Save(ctx context.Context, l *model.SyncLog) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return r.store.Put(ctx, KindSyncLogs, l.ID, l)
}

func (r *SyncLogRepo) ByConfig(ctx context.Context, configID string) ([]model.SyncLog, error) {
	return find[model.SyncLog](ctx, r.store, KindSyncLogs, func(l *model.SyncLog) bool {
		return l.SyncConfigID == configID
	})
}

type ItemLogRepo struct{ store Store }

func (r *ItemLogRepo) Save(ctx context.Context, l *model.SyncItemLog) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return r.store.Put(ctx, KindSyncItemLogs, l.ID, l)
}

func (r *ItemLogRepo) ByLog(ctx context.Context, logID string) ([]model.SyncItemLog, error) {
	return find[model.SyncItemLog](ctx, r.store, KindSyncItemLogs, func(l *model.SyncItemLog) bool {
		return l.SyncLogID == logID
	})
}

type ActionLogRepo struct{ store Store }

func (r *ActionLogRepo) Save(ctx context.Context, l *model.SyncActionLog) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return r.store.Put(ctx, KindSyncActionLogs, l.ID, l)
}

func (r *ActionLogRepo) ByLog(ctx context.Context, logID string) ([]model.SyncActionLog, error) {
	return find[model.SyncActionLog](ctx, r.store, KindSyncActionLogs, func(l *model.SyncActionLog) bool {
		return l.SyncLogID == logID
	})
}
