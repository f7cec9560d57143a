// Package provisioning pushes resolved attribute sets to target systems
// through the connector dispatch.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
	"go.uber.org/zap"
)

type Executor struct {
	repos  *repo.Repositories
	pool   *connector.Pool
	values *mapping.ValueResolver
	logger *zap.Logger
}

func NewExecutor(repos *repo.Repositories, pool *connector.Pool, values *mapping.ValueResolver, logger *zap.Logger) *Executor {
	return &Executor{
		repos:  repos,
		pool:   pool,
		values: values,
		logger: logger.Named("provisioning"),
	}
}

// Provision pushes the resolved attribute set for one (account, entity)
// pair. An absent or empty mapping is a no-op, not an error. Configuration
// errors are fatal for this call and never retried here; retry policy
// belongs to the connector dispatch.
//
// current holds the target's last observed values keyed by schema attribute
// name, nil when unknown. It gates WRITE_IF_NULL attributes and the
// unchanged-value skip on updates.
func (e *Executor) Provision(ctx context.Context, account *model.Account, entity *model.Entity, op model.OperationType, current map[string]any) error {
	system, err := e.repos.Systems.Get(ctx, account.SystemID)
	if err != nil {
		return fmt.Errorf("load system %s: %w", account.SystemID, err)
	}
	if system.ReadOnly {
		e.logger.Debug("system is read-only, skipping push",
			zap.String("system", system.Name),
			zap.String("uid", account.UID))
		return nil
	}

	sysMapping, err := e.repos.Mappings.ByTriple(ctx, system.ID, entity.Kind, model.OperationProvisioning)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}

	op, err = e.ensureSystemEntity(ctx, account, entity.Kind, op)
	if err != nil {
		return err
	}

	if op == model.OperationDelete {
		return e.dispatch(ctx, system, connector.Operation{
			Type:        model.OperationDelete,
			SystemID:    system.ID,
			ObjectClass: sysMapping.ObjectClass,
			UID:         account.UID,
		})
	}

	overrides, err := e.repos.Overrides.ForEntity(ctx, entity.ID, system.ID)
	if err != nil {
		return err
	}

	resolved := mapping.Resolve(sysMapping.Attributes, overrides)
	if len(resolved) == 0 {
		return nil
	}
	if err := mapping.ValidateStrategyConflicts(resolved); err != nil {
		return err
	}

	uid, attrs, err := e.buildAttributes(ctx, resolved, entity, op, current)
	if err != nil {
		return err
	}
	if uid != "" && uid != account.UID {
		account.UID = uid
		if err := e.repos.Accounts.Save(ctx, account); err != nil {
			return fmt.Errorf("persist account uid: %w", err)
		}
	}
	if account.UID == "" {
		return model.NewCodedError(model.CodeUIDAttributeMissing, map[string]any{
			"system": system.Name,
			"entity": entity.ID,
		})
	}

	return e.dispatch(ctx, system, connector.Operation{
		Type:        op,
		SystemID:    system.ID,
		ObjectClass: sysMapping.ObjectClass,
		UID:         account.UID,
		Attributes:  attrs,
	})
}

// ProvisionAttribute pushes a single attribute out of band, e.g. a password
// change, bypassing full resolution.
func (e *Executor) ProvisionAttribute(ctx context.Context, account *model.Account, entity *model.Entity, attributeName string, value any) error {
	system, err := e.repos.Systems.Get(ctx, account.SystemID)
	if err != nil {
		return fmt.Errorf("load system %s: %w", account.SystemID, err)
	}
	sysMapping, err := e.repos.Mappings.ByTriple(ctx, system.ID, entity.Kind, model.OperationProvisioning)
	if err != nil {
		return err
	}

	var target *model.AttributeMapping
	for i := range sysMapping.Attributes {
		if sysMapping.Attributes[i].SchemaAttribute.Name == attributeName {
			target = &sysMapping.Attributes[i]
			break
		}
	}
	if target == nil {
		return model.NewCodedError(model.CodeSystemMappingNotFound, map[string]any{
			"system":    system.Name,
			"attribute": attributeName,
		})
	}
	if !target.SchemaAttribute.Updateable {
		return model.NewCodedError(model.CodeSchemaAttributeNotUpdateable, map[string]any{
			"system":    system.Name,
			"attribute": attributeName,
		})
	}

	return e.dispatch(ctx, system, connector.Operation{
		Type:        model.OperationUpdate,
		SystemID:    system.ID,
		ObjectClass: sysMapping.ObjectClass,
		UID:         account.UID,
		Attributes: map[connector.AttrKey]any{
			{Name: attributeName, MappingID: target.ID}: value,
		},
	})
}

// ensureSystemEntity resolves or creates the SystemEntity behind the
// account. A freshly created entity is a wish (not yet confirmed on the
// target) and upgrades the operation to CREATE.
func (e *Executor) ensureSystemEntity(ctx context.Context, account *model.Account, kind model.EntityKind, op model.OperationType) (model.OperationType, error) {
	if account.SystemEntityID != "" {
		if _, err := e.repos.SystemEntities.Get(ctx, account.SystemEntityID); err == nil {
			return op, nil
		}
	}

	existing, err := e.repos.SystemEntities.ByUID(ctx, account.SystemID, kind, account.UID)
	if err != nil {
		return op, err
	}
	if existing != nil {
		account.SystemEntityID = existing.ID
		return op, e.repos.Accounts.Save(ctx, account)
	}

	wish := &model.SystemEntity{
		SystemID: account.SystemID,
		Kind:     kind,
		UID:      account.UID,
		Wish:     true,
	}
	if err := e.repos.SystemEntities.Save(ctx, wish); err != nil {
		return op, err
	}
	account.SystemEntityID = wish.ID
	if err := e.repos.Accounts.Save(ctx, account); err != nil {
		return op, err
	}
	if op != model.OperationDelete {
		op = model.OperationCreate
	}
	return op, nil
}

// buildAttributes computes the outbound value map, keyed by schema attribute
// name plus source mapping so several mappings may target the same name.
func (e *Executor) buildAttributes(ctx context.Context, resolved []model.AttributeMapping, entity *model.Entity, op model.OperationType, current map[string]any) (string, map[connector.AttrKey]any, error) {
	groups, order, rest := mapping.MergeGroups(resolved)

	attrs := make(map[connector.AttrKey]any)
	var uid string

	for _, m := range rest {
		if m.Strategy == model.StrategyCreate && op != model.OperationCreate {
			continue
		}
		value, err := e.values.ToTarget(ctx, m, entity)
		if err != nil {
			return "", nil, err
		}
		if m.UID {
			produced, err := mapping.UIDValue(value)
			if err != nil {
				return "", nil, err
			}
			if produced != "" {
				uid = produced
			}
			continue
		}
		if value == nil && m.SendOnlyIfNotNull {
			continue
		}
		if op != model.OperationCreate {
			if m.Strategy == model.StrategyWriteIfNull && !currentAbsent(current, m.SchemaAttribute.Name) {
				continue
			}
			if !m.SendAlways && unchanged(current, m.SchemaAttribute.Name, value) {
				continue
			}
		}
		attrs[connector.AttrKey{Name: m.SchemaAttribute.Name, MappingID: m.ID}] = value
	}

	for _, id := range order {
		group := groups[id]
		values, err := e.values.MergeToTarget(ctx, group, entity)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 && group[0].SendOnlyIfNotNull {
			continue
		}
		if op != model.OperationCreate && !group[0].SendAlways &&
			unchanged(current, group[0].SchemaAttribute.Name, values) {
			continue
		}
		attrs[connector.AttrKey{Name: group[0].SchemaAttribute.Name, MappingID: group[0].ID}] = values
	}

	return uid, attrs, nil
}

// currentAbsent reports whether the target's value for the attribute is
// known to be absent. An unknown current value counts as present, so a
// WRITE_IF_NULL attribute never overwrites blindly.
func currentAbsent(current map[string]any, name string) bool {
	if current == nil {
		return false
	}
	switch v := current[name].(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// unchanged reports whether the computed value equals the target's known
// current value. Only exact matches are skipped; any doubt means send.
func unchanged(current map[string]any, name string, value any) bool {
	if current == nil {
		return false
	}
	cur, ok := current[name]
	if !ok {
		return false
	}
	return reflect.DeepEqual(cur, value)
}

func (e *Executor) dispatch(ctx context.Context, system *model.System, op connector.Operation) error {
	conn, err := e.pool.For(ctx, system)
	if err != nil {
		return err
	}
	result, err := conn.Execute(ctx, op)
	if err != nil {
		return fmt.Errorf("dispatch %s to %s: %w", op.Type, system.Name, err)
	}
	e.logger.Info("provisioned",
		zap.String("system", system.Name),
		zap.String("uid", result.UID),
		zap.String("requested", string(op.Type)),
		zap.String("executed", string(result.Executed)),
		zap.Int("attributes", len(op.Attributes)))
	return nil
}
