package delegation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/pkg/auth"
	"github.com/quorumdao/govx/pkg/clock"
	"github.com/quorumdao/govx/pkg/events"
	"github.com/quorumdao/govx/pkg/store"
	"github.com/quorumdao/govx/pkg/types"
)

func keyDelegations(delegator string) string {
	return "del:out:" + delegator
}

func keyDelegators(delegatee string) string {
	return "del:in:" + delegatee
}

// Registry owns the delegator→delegations list and the derived
// delegatee→(delegator→fraction) reverse index. The two are facts about
// the same relation and are only ever mutated together inside a single
// store transaction, so the reverse index can never diverge.
type Registry struct {
	logger   *zap.Logger
	store    *store.Store
	clock    clock.Clock
	presence auth.PresenceVerifier
	emitter  events.Emitter
}

func NewRegistry(
	logger *zap.Logger,
	st *store.Store,
	clk clock.Clock,
	presence auth.PresenceVerifier,
	emitter events.Emitter,
) *Registry {
	return &Registry{
		logger:   logger.With(zap.String("module", "delegation")),
		store:    st,
		clock:    clk,
		presence: presence,
		emitter:  emitter,
	}
}

// MakeDelegation upserts a delegation from delegator to delegatee: a prior
// entry for the same delegatee is replaced, not added to. The committed
// total of currently valid fractions (the replaced entry excluded) plus
// the new fraction must not exceed 100%.
func (r *Registry) MakeDelegation(
	delegator string,
	proof auth.Proof,
	delegatee string,
	fraction types.Fraction,
	validUntil int64,
) error {
	if err := r.presence.VerifyPresence(delegator, proof); err != nil {
		return err
	}
	if fraction == 0 || fraction > types.FractionOne {
		return fmt.Errorf("%w: fraction must be between 0 (exclusive) and 1 (inclusive)", types.ErrValidation)
	}
	if delegator == delegatee {
		return fmt.Errorf("%w: cannot delegate to yourself", types.ErrValidation)
	}
	now := r.clock.Now()
	if validUntil <= now {
		return fmt.Errorf("%w: delegation must be valid for some time in the future", types.ErrValidation)
	}

	err := r.store.Update([]string{keyDelegations(delegator), keyDelegators(delegatee)}, func(txn *store.Txn) error {
		var list []types.Delegation
		if _, err := txn.Get(keyDelegations(delegator), &list); err != nil {
			return err
		}

		// Committed total over still-valid entries, skipping the entry
		// being replaced. Expired entries stay in the list but don't count.
		var committed types.Fraction
		replacing := false
		for _, d := range list {
			if d.Delegatee == delegatee {
				replacing = true
				continue
			}
			if d.ActiveAt(now) {
				committed += d.Fraction
			}
		}
		if committed+fraction > types.FractionOne {
			return fmt.Errorf("%w: %s + %s over 100%%", types.ErrCapExceeded, committed, fraction)
		}
		if !replacing && len(list) >= types.MaxDelegationEntries {
			return fmt.Errorf("%w: at most %d delegation entries", types.ErrValidation, types.MaxDelegationEntries)
		}

		next := make([]types.Delegation, 0, len(list)+1)
		for _, d := range list {
			if d.Delegatee != delegatee {
				next = append(next, d)
			}
		}
		next = append(next, types.Delegation{
			Delegatee:  delegatee,
			Fraction:   fraction,
			ValidUntil: validUntil,
		})
		if err := txn.Set(keyDelegations(delegator), next); err != nil {
			return err
		}

		var index map[string]types.Fraction
		if _, err := txn.Get(keyDelegators(delegatee), &index); err != nil {
			return err
		}
		if index == nil {
			index = map[string]types.Fraction{}
		}
		index[delegator] = fraction
		return txn.Set(keyDelegators(delegatee), index)
	})
	if err != nil {
		return err
	}

	r.logger.Info("delegation made",
		zap.String("delegator", delegator),
		zap.String("delegatee", delegatee),
		zap.Uint32("fraction", uint32(fraction)),
		zap.Int64("validUntil", validUntil))
	r.emitter.Emit(events.Event{
		Topic: events.TopicDelegationMade,
		At:    now,
		Payload: map[string]any{
			"delegator":  delegator,
			"delegatee":  delegatee,
			"fraction":   fraction,
			"validUntil": validUntil,
		},
	})
	return nil
}

// RemoveDelegation deletes the delegator's entry for delegatee from both
// the primary list and the reverse index.
func (r *Registry) RemoveDelegation(delegator string, proof auth.Proof, delegatee string) error {
	if err := r.presence.VerifyPresence(delegator, proof); err != nil {
		return err
	}

	err := r.store.Update([]string{keyDelegations(delegator), keyDelegators(delegatee)}, func(txn *store.Txn) error {
		var list []types.Delegation
		found, err := txn.Get(keyDelegations(delegator), &list)
		if err != nil {
			return err
		}
		if !found || len(list) == 0 {
			return fmt.Errorf("%w: no delegations for account %s", types.ErrNotFound, delegator)
		}
		next := make([]types.Delegation, 0, len(list))
		for _, d := range list {
			if d.Delegatee != delegatee {
				next = append(next, d)
			}
		}
		if len(next) == len(list) {
			return fmt.Errorf("%w: no delegation to %s", types.ErrNotFound, delegatee)
		}
		if err := txn.Set(keyDelegations(delegator), next); err != nil {
			return err
		}

		var index map[string]types.Fraction
		if _, err := txn.Get(keyDelegators(delegatee), &index); err != nil {
			return err
		}
		if index != nil {
			delete(index, delegator)
			return txn.Set(keyDelegators(delegatee), index)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("delegation removed",
		zap.String("delegator", delegator),
		zap.String("delegatee", delegatee))
	r.emitter.Emit(events.Event{
		Topic: events.TopicDelegationRemoved,
		At:    r.clock.Now(),
		Payload: map[string]any{
			"delegator": delegator,
			"delegatee": delegatee,
		},
	})
	return nil
}

// Delegations returns a snapshot of the delegator's entries, expired ones
// included. Empty slice when none exist.
func (r *Registry) Delegations(delegator string) ([]types.Delegation, error) {
	var list []types.Delegation
	err := r.store.View(func(txn *store.Txn) error {
		_, err := txn.Get(keyDelegations(delegator), &list)
		return err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []types.Delegation{}
	}
	return list, nil
}

// DelegateeDelegator is the reverse-index point lookup: the fraction the
// delegator has assigned to the delegatee, or nil when no record exists.
func (r *Registry) DelegateeDelegator(delegatee, delegator string) (*types.Fraction, error) {
	var index map[string]types.Fraction
	err := r.store.View(func(txn *store.Txn) error {
		_, err := txn.Get(keyDelegators(delegatee), &index)
		return err
	})
	if err != nil {
		return nil, err
	}
	if f, ok := index[delegator]; ok {
		return &f, nil
	}
	return nil, nil
}
