package sync

import (
	"context"
	"errors"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/entity"
	"codeberg.org/idgov/idgov/pkg/mapping"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
)

// Classifier determines the situation of one external record. It only reads
// local state; no mutation happens here.
type Classifier struct {
	repos    *repo.Repositories
	adapters *entity.Registry
	values   *mapping.ValueResolver
}

func NewClassifier(repos *repo.Repositories, adapters *entity.Registry, values *mapping.ValueResolver) *Classifier {
	return &Classifier{repos: repos, adapters: adapters, values: values}
}

// Classify maps a record to LINKED, UNLINKED, MISSING_ENTITY or
// MISSING_ACCOUNT.
//
// A DELETE delta, connector-reported or synthesized by reconciliation, is
// always MISSING_ACCOUNT. Otherwise an account match wins regardless of
// correlation; without one, the correlation attribute decides between
// UNLINKED and MISSING_ENTITY.
func (c *Classifier) Classify(ctx context.Context, run *RunContext, rec connector.ExternalRecord) (*Classification, error) {
	if rec.Delta == model.DeltaDelete {
		account, err := c.repos.Accounts.ByUID(ctx, run.System.ID, rec.UID)
		if err != nil {
			return nil, err
		}
		cls := &Classification{Situation: model.SituationMissingAccount, Account: account}
		if account != nil {
			cls.Entity, err = c.ownerEntity(ctx, run, account)
			if err != nil {
				return nil, err
			}
		}
		return cls, nil
	}

	account, err := c.repos.Accounts.ByUID(ctx, run.System.ID, rec.UID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		owner, err := c.ownerEntity(ctx, run, account)
		if err != nil {
			return nil, err
		}
		return &Classification{Situation: model.SituationLinked, Account: account, Entity: owner}, nil
	}

	found, err := c.correlate(ctx, run, rec)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return &Classification{Situation: model.SituationUnlinked, Entity: found}, nil
	}
	return &Classification{Situation: model.SituationMissingEntity}, nil
}

// correlate runs the correlation attribute's transformed value through the
// entity adapter's property or extended-attribute owner lookup.
func (c *Classifier) correlate(ctx context.Context, run *RunContext, rec connector.ExternalRecord) (*model.Entity, error) {
	corr := run.Correlation
	value, err := c.values.FromTarget(ctx, corr, rec.Attributes)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	adapter, err := c.adapters.For(run.Mapping.EntityKind)
	if err != nil {
		return nil, err
	}
	return adapter.FindByCorrelation(ctx, corr.TargetProperty, value, corr.Extended)
}

func (c *Classifier) ownerEntity(ctx context.Context, run *RunContext, account *model.Account) (*model.Entity, error) {
	links, err := c.repos.Links.ByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	adapter, err := c.adapters.For(run.Mapping.EntityKind)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if !link.Ownership {
			continue
		}
		owner, err := adapter.FindByID(ctx, link.EntityID)
		if err == nil {
			return owner, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
