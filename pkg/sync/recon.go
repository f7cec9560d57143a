package sync

import (
	"context"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/model"
	"codeberg.org/idgov/idgov/pkg/repo"
)

// Scanner finds local accounts whose uid the target never reported during a
// run. Each absent uid yields exactly one synthesized DELETE record, which
// the orchestrator feeds through the same per-item path as connector-reported
// deltas.
type Scanner struct {
	repos *repo.Repositories
}

func NewScanner(repos *repo.Repositories) *Scanner {
	return &Scanner{repos: repos}
}

// Missing returns synthesized DELETE records for accounts on the system
// whose uid is not in the observed set.
func (s *Scanner) Missing(ctx context.Context, run *RunContext, observed map[string]bool) ([]connector.ExternalRecord, error) {
	accounts, err := s.repos.Accounts.BySystem(ctx, run.System.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []connector.ExternalRecord
	for _, account := range accounts {
		if observed[account.UID] || seen[account.UID] {
			continue
		}
		seen[account.UID] = true
		out = append(out, connector.ExternalRecord{
			UID:         account.UID,
			Delta:       model.DeltaDelete,
			ObjectClass: run.Mapping.ObjectClass,
		})
	}
	return out, nil
}
