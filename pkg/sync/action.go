package sync

import (
	"context"
	"fmt"

	"codeberg.org/idgov/idgov/pkg/entity"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/provisioning"
	"codeberg.org/idgov/idgov/pkg/repo"
	"codeberg.org/idgov/idgov/pkg/workflow"
	"go.uber.org/zap"
)

// ActionExecutor runs the configured remediation for a classified item. A
// branch sets the item's action/result exactly once; the orchestrator turns
// that into a single action-log increment per item.
type ActionExecutor struct {
	repos       *repo.Repositories
	adapters    *entity.Registry
	provisioner *provisioning.Executor
	values      *mapping.ValueResolver
	workflows   workflow.Engine
	logger      *zap.Logger
}

func NewActionExecutor(
	repos *repo.Repositories,
	adapters *entity.Registry,
	provisioner *provisioning.Executor,
	values *mapping.ValueResolver,
	workflows workflow.Engine,
	logger *zap.Logger,
) *ActionExecutor {
	return &ActionExecutor{
		repos:       repos,
		adapters:    adapters,
		provisioner: provisioner,
		values:      values,
		workflows:   workflows,
		logger:      logger.Named("action"),
	}
}

// Execute drives one item through its configured action, inline or
// delegated to the workflow engine.
func (x *ActionExecutor) Execute(ctx context.Context, item *ItemContext) error {
	situation := item.Classification.Situation
	setting := item.Run.Config.Setting(situation)
	item.ItemLog.Situation = situation
	item.ItemLog.Action = setting.Action

	if setting.WorkflowKey != "" {
		return x.delegate(ctx, item, setting)
	}

	switch situation {
	case model.SituationLinked:
		return x.executeLinked(ctx, item, setting.Action)
	case model.SituationUnlinked:
		return x.executeUnlinked(ctx, item, setting.Action)
	case model.SituationMissingEntity:
		return x.executeMissingEntity(ctx, item, setting.Action)
	case model.SituationMissingAccount:
		return x.executeMissingAccount(ctx, item, setting.Action)
	default:
		x.ignore(item, fmt.Sprintf("unknown situation %s", situation))
		return nil
	}
}

// delegate hands the situation to the workflow engine. Completion state of
// the process is advisory only.
func (x *ActionExecutor) delegate(ctx context.Context, item *ItemContext, setting model.SituationSetting) error {
	vars := workflow.Variables{
		"uid":        item.Record.UID,
		"entityType": string(item.Run.Mapping.EntityKind),
		"situation":  string(item.Classification.Situation),
		"action":     string(setting.Action),
		"attributes": item.Record.Attributes,
		"configId":   item.Run.Config.ID,
	}
	if item.Classification.Entity != nil {
		vars["entityId"] = item.Classification.Entity.ID
	}
	if item.Classification.Account != nil {
		vars["accountId"] = item.Classification.Account.ID
	}

	instance, err := x.workflows.StartProcess(ctx, setting.WorkflowKey, "sync-config", item.Run.Config.ID, item.Record.UID, vars)
	if err != nil {
		return fmt.Errorf("start workflow %s: %w", setting.WorkflowKey, err)
	}

	item.ItemLog.Result = model.ResultWorkflow
	item.ItemLog.Message = fmt.Sprintf("delegated to workflow %s (process %s)", setting.WorkflowKey, instance.ID)
	return nil
}

func (x *ActionExecutor) executeLinked(ctx context.Context, item *ItemContext, action model.SituationAction) error {
	cls := item.Classification

	switch action {
	case model.ActionUnlink, model.ActionUnlinkAndRemove:
		if err := x.unlink(ctx, cls.Account, action == model.ActionUnlinkAndRemove); err != nil {
			return err
		}
		x.success(item, "account unlinked")
		return nil

	case model.ActionUpdateEntity:
		if cls.Entity == nil {
			x.ignore(item, "linked account has no owner entity to update")
			return nil
		}
		if err := x.fillEntity(ctx, item, cls.Entity); err != nil {
			return err
		}
		if err := x.pushIfSupported(ctx, item, cls.Account, cls.Entity, model.OperationUpdate); err != nil {
			return err
		}
		x.success(item, "entity updated from external record")
		return nil

	case model.ActionUpdateAccount:
		if cls.Entity == nil {
			x.ignore(item, "linked account has no owner entity to push from")
			return nil
		}
		if err := x.provisioner.Provision(ctx, cls.Account, cls.Entity, model.OperationUpdate, item.Record.Attributes); err != nil {
			return err
		}
		x.success(item, "account updated on target")
		return nil

	default:
		x.ignore(item, "")
		return nil
	}
}

func (x *ActionExecutor) executeUnlinked(ctx context.Context, item *ItemContext, action model.SituationAction) error {
	cls := item.Classification

	switch action {
	case model.ActionLink, model.ActionLinkAndUpdate:
		account, err := x.link(ctx, item, cls.Entity)
		if err != nil {
			return err
		}
		if action == model.ActionLinkAndUpdate {
			if err := x.provisioner.Provision(ctx, account, cls.Entity, model.OperationUpdate, item.Record.Attributes); err != nil {
				return err
			}
			x.success(item, "account linked and updated on target")
			return nil
		}
		x.success(item, "account linked")
		return nil

	default:
		x.ignore(item, "")
		return nil
	}
}

func (x *ActionExecutor) executeMissingEntity(ctx context.Context, item *ItemContext, action model.SituationAction) error {
	switch action {
	case model.ActionCreateEntity:
		adapter, err := x.adapters.For(item.Run.Mapping.EntityKind)
		if err != nil {
			return err
		}
		created := &model.Entity{Kind: item.Run.Mapping.EntityKind}
		if err := x.fillInto(ctx, item, adapter, created); err != nil {
			return err
		}
		if _, err := adapter.Save(ctx, created); err != nil {
			return fmt.Errorf("save created entity: %w", err)
		}

		account, err := x.link(ctx, item, created)
		if err != nil {
			return err
		}
		if err := x.pushIfSupported(ctx, item, account, created, model.OperationUpdate); err != nil {
			return err
		}
		x.success(item, fmt.Sprintf("entity %s created and linked", created.ID))
		return nil

	default:
		x.ignore(item, "")
		return nil
	}
}

func (x *ActionExecutor) executeMissingAccount(ctx context.Context, item *ItemContext, action model.SituationAction) error {
	cls := item.Classification
	if cls.Account == nil {
		x.ignore(item, "no local account for missing uid")
		return nil
	}

	switch action {
	case model.ActionCreateAccount:
		if cls.Entity == nil {
			x.ignore(item, "account has no owner entity to recreate from")
			return nil
		}
		if err := x.provisioner.Provision(ctx, cls.Account, cls.Entity, model.OperationCreate, nil); err != nil {
			return err
		}
		x.success(item, "account recreated on target")
		return nil

	case model.ActionDeleteEntity:
		if err := x.deleteEntity(ctx, item, cls.Account); err != nil {
			return err
		}
		x.success(item, "entity deleted via owning link")
		return nil

	case model.ActionUnlink, model.ActionUnlinkAndRemove:
		if err := x.unlink(ctx, cls.Account, action == model.ActionUnlinkAndRemove); err != nil {
			return err
		}
		x.success(item, "account unlinked")
		return nil

	default:
		x.ignore(item, "")
		return nil
	}
}

// unlink removes all entity-account links for the account, optionally
// cascading to the contributing role assignment. When the last ownership
// link goes, the account and its system entity go with it.
func (x *ActionExecutor) unlink(ctx context.Context, account *model.Account, removeRole bool) error {
	links, err := x.repos.Links.ByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	ownershipRemoved := false
	for _, link := range links {
		if removeRole && link.RoleAssignmentID != "" {
			if err := x.repos.RoleAssignments.Delete(ctx, link.RoleAssignmentID); err != nil {
				return fmt.Errorf("remove role assignment: %w", err)
			}
		}
		if err := x.repos.Links.Delete(ctx, link.ID); err != nil {
			return err
		}
		if link.Ownership {
			ownershipRemoved = true
		}
	}
	if ownershipRemoved {
		return x.cascadeDelete(ctx, account)
	}
	return nil
}

func (x *ActionExecutor) deleteEntity(ctx context.Context, item *ItemContext, account *model.Account) error {
	links, err := x.repos.Links.ByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	adapter, err := x.adapters.For(item.Run.Mapping.EntityKind)
	if err != nil {
		return err
	}
	for _, link := range links {
		if link.Ownership {
			if err := adapter.Delete(ctx, link.EntityID); err != nil {
				return fmt.Errorf("delete entity %s: %w", link.EntityID, err)
			}
		}
		if err := x.repos.Links.Delete(ctx, link.ID); err != nil {
			return err
		}
	}
	return x.cascadeDelete(ctx, account)
}

func (x *ActionExecutor) cascadeDelete(ctx context.Context, account *model.Account) error {
	remaining, err := x.repos.Links.ByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	for _, link := range remaining {
		if link.Ownership {
			return nil
		}
	}
	if account.SystemEntityID != "" {
		if err := x.repos.SystemEntities.Delete(ctx, account.SystemEntityID); err != nil {
			return err
		}
	}
	return x.repos.Accounts.Delete(ctx, account.ID)
}

// link creates the Account and its ownership link for an entity.
func (x *ActionExecutor) link(ctx context.Context, item *ItemContext, e *model.Entity) (*model.Account, error) {
	account := &model.Account{
		UID:      item.Record.UID,
		SystemID: item.Run.System.ID,
	}
	if err := x.repos.Accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	link := &model.EntityAccountLink{
		EntityID:  e.ID,
		AccountID: account.ID,
		Ownership: true,
	}
	if err := x.repos.Links.Save(ctx, link); err != nil {
		return nil, err
	}
	item.Classification.Account = account
	return account, nil
}

// fillEntity updates an existing entity from the external record and saves.
func (x *ActionExecutor) fillEntity(ctx context.Context, item *ItemContext, e *model.Entity) error {
	adapter, err := x.adapters.For(item.Run.Mapping.EntityKind)
	if err != nil {
		return err
	}
	if err := x.fillInto(ctx, item, adapter, e); err != nil {
		return err
	}
	_, err = adapter.Save(ctx, e)
	return err
}

// fillInto computes inbound values for every default mapping and writes
// them through the adapter.
func (x *ActionExecutor) fillInto(ctx context.Context, item *ItemContext, adapter entity.Adapter, e *model.Entity) error {
	values := make(map[string]any)
	extended := make(map[string]bool)
	for _, m := range item.Run.Mapping.Attributes {
		if m.Disabled || m.TargetProperty == "" {
			continue
		}
		v, err := x.values.FromTarget(ctx, m, item.Record.Attributes)
		if err != nil {
			return err
		}
		values[m.TargetProperty] = v
		extended[m.TargetProperty] = m.Extended
	}
	adapter.Fill(e, values, extended)
	return nil
}

func (x *ActionExecutor) pushIfSupported(ctx context.Context, item *ItemContext, account *model.Account, e *model.Entity, op model.OperationType) error {
	adapter, err := x.adapters.For(item.Run.Mapping.EntityKind)
	if err != nil {
		return err
	}
	if !adapter.SupportsProvisioning() {
		return nil
	}
	return x.provisioner.Provision(ctx, account, e, op, item.Record.Attributes)
}

func (x *ActionExecutor) success(item *ItemContext, message string) {
	item.ItemLog.Result = model.ResultSuccess
	item.ItemLog.Message = message
}

// ignore is the explicit fall-through: unhandled cases always leave an
// IGNORE entry, never silence.
func (x *ActionExecutor) ignore(item *ItemContext, message string) {
	item.ItemLog.Action = model.ActionIgnore
	item.ItemLog.Result = model.ResultIgnore
	item.ItemLog.Message = message
}
