package gov

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/pkg/auth"
	"github.com/quorumdao/govx/pkg/clock"
	"github.com/quorumdao/govx/pkg/events"
	"github.com/quorumdao/govx/pkg/store"
	"github.com/quorumdao/govx/pkg/types"
)

const daySeconds = 24 * 60 * 60

// Engine owns temperature checks, proposals, their vote stores, and the
// elevation relationship between them. Each public method is one atomic
// unit: it validates, mutates inside a single store transaction, and emits
// one event on success.
type Engine struct {
	logger   *zap.Logger
	store    *store.Store
	clock    clock.Clock
	presence auth.PresenceVerifier
	gate     auth.PrivilegedGate
	emitter  events.Emitter
}

// NewEngine wires the engine and persists defaults as the live parameter
// set when the store holds none yet.
func NewEngine(
	logger *zap.Logger,
	st *store.Store,
	clk clock.Clock,
	presence auth.PresenceVerifier,
	gate auth.PrivilegedGate,
	emitter events.Emitter,
	defaults types.GovernanceParams,
) (*Engine, error) {
	e := &Engine{
		logger:   logger.With(zap.String("module", "gov")),
		store:    st,
		clock:    clk,
		presence: presence,
		gate:     gate,
		emitter:  emitter,
	}
	err := st.Update([]string{keyParams}, func(txn *store.Txn) error {
		var existing types.GovernanceParams
		found, err := txn.Get(keyParams, &existing)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		return txn.Set(keyParams, defaults)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func validateDraft(draft types.TemperatureCheckDraft) error {
	if draft.Title == "" {
		return fmt.Errorf("%w: title cannot be empty", types.ErrValidation)
	}
	if draft.Description == "" {
		return fmt.Errorf("%w: description cannot be empty", types.ErrValidation)
	}
	if len(draft.VoteOptions) == 0 {
		return fmt.Errorf("%w: at least one vote option is required", types.ErrValidation)
	}
	if len(draft.VoteOptions) > types.MaxVoteOptions {
		return fmt.Errorf("%w: too many vote options (max %d)", types.ErrValidation, types.MaxVoteOptions)
	}
	if len(draft.Attachments) > types.MaxAttachments {
		return fmt.Errorf("%w: too many attachments (max %d)", types.ErrValidation, types.MaxAttachments)
	}
	if draft.MaxSelections != nil && *draft.MaxSelections == 0 {
		return fmt.Errorf("%w: maxSelections must be at least 1", types.ErrValidation)
	}
	return nil
}

// CreateTemperatureCheck stores a new straw poll and returns its id.
// The temperature-check tier parameters are snapshotted into the record;
// later parameter updates do not affect it.
func (e *Engine) CreateTemperatureCheck(draft types.TemperatureCheckDraft) (uint64, error) {
	if err := validateDraft(draft); err != nil {
		return 0, err
	}

	now := e.clock.Now()
	var id uint64
	var tc types.TemperatureCheck
	// keyParams is read here, so it must be locked too: otherwise a
	// concurrently committed parameter update trips badger's conflict
	// detection and fails this valid creation.
	err := e.store.Update([]string{keyTCCount, keyParams}, func(txn *store.Txn) error {
		var params types.GovernanceParams
		if _, err := txn.Get(keyParams, &params); err != nil {
			return err
		}
		var count uint64
		if _, err := txn.Get(keyTCCount, &count); err != nil {
			return err
		}
		id = count
		tc = types.TemperatureCheck{
			ID:                id,
			Title:             draft.Title,
			Description:       draft.Description,
			VoteOptions:       draft.VoteOptions,
			Attachments:       draft.Attachments,
			ReferenceURL:      draft.ReferenceURL,
			Quorum:            params.TemperatureCheckQuorum,
			ApprovalThreshold: params.TemperatureCheckApprovalThreshold,
			MaxSelections:     draft.MaxSelections,
			Start:             now,
			Deadline:          now + int64(params.TemperatureCheckDays)*daySeconds,
			Votes:             map[string]types.Choice{},
		}
		if err := txn.Set(keyTemperatureCheck(id), &tc); err != nil {
			return err
		}
		return txn.Set(keyTCCount, count+1)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("temperature check created",
		zap.Uint64("id", id),
		zap.String("title", tc.Title),
		zap.Int64("deadline", tc.Deadline))
	e.emitter.Emit(events.Event{
		Topic: events.TopicTemperatureCheckCreated,
		At:    now,
		Payload: map[string]any{
			"id":       id,
			"title":    tc.Title,
			"start":    tc.Start,
			"deadline": tc.Deadline,
		},
	})
	return id, nil
}

// Elevate promotes a temperature check into a binding proposal. Privileged.
// The source's forward reference and the new proposal are written in one
// transaction so the source is never observed elevated without its target.
func (e *Engine) Elevate(cred auth.Credential, tcID uint64) (uint64, error) {
	if err := e.gate.VerifyPrivileged(cred); err != nil {
		return 0, err
	}

	now := e.clock.Now()
	var propID uint64
	// locks include keyParams for the same reason as creation: the
	// proposal-tier snapshot reads it
	err := e.store.Update([]string{keyTemperatureCheck(tcID), keyPropCount, keyParams}, func(txn *store.Txn) error {
		var tc types.TemperatureCheck
		found, err := txn.Get(keyTemperatureCheck(tcID), &tc)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: temperature check %d", types.ErrNotFound, tcID)
		}
		if tc.ElevatedProposalID != nil {
			return fmt.Errorf("%w: temperature check %d already elevated to proposal %d",
				types.ErrAlreadyRecorded, tcID, *tc.ElevatedProposalID)
		}

		var params types.GovernanceParams
		if _, err := txn.Get(keyParams, &params); err != nil {
			return err
		}
		var count uint64
		if _, err := txn.Get(keyPropCount, &count); err != nil {
			return err
		}
		propID = count
		prop := types.Proposal{
			ID:                 propID,
			TemperatureCheckID: tcID,
			Title:              tc.Title,
			Description:        tc.Description,
			VoteOptions:        tc.VoteOptions,
			Attachments:        tc.Attachments,
			ReferenceURL:       tc.ReferenceURL,
			Quorum:             params.ProposalQuorum,
			ApprovalThreshold:  params.ProposalApprovalThreshold,
			MaxSelections:      tc.MaxSelections,
			Start:              now,
			Deadline:           now + int64(params.ProposalLengthDays)*daySeconds,
			Votes:              map[string][]uint32{},
		}

		tc.ElevatedProposalID = &propID
		if err := txn.Set(keyTemperatureCheck(tcID), &tc); err != nil {
			return err
		}
		if err := txn.Set(keyProposal(propID), &prop); err != nil {
			return err
		}
		return txn.Set(keyPropCount, count+1)
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("temperature check elevated",
		zap.Uint64("temperatureCheckId", tcID),
		zap.Uint64("proposalId", propID))
	e.emitter.Emit(events.Event{
		Topic: events.TopicProposalElevated,
		At:    now,
		Payload: map[string]any{
			"temperatureCheckId": tcID,
			"proposalId":         propID,
		},
	})
	return propID, nil
}

// VoteOnTemperatureCheck records a binary choice for the account. One vote
// per account per ballot; no revision.
func (e *Engine) VoteOnTemperatureCheck(account string, proof auth.Proof, tcID uint64, choice types.Choice) error {
	if err := e.presence.VerifyPresence(account, proof); err != nil {
		return err
	}
	if !choice.Valid() {
		return fmt.Errorf("%w: choice must be %q or %q", types.ErrValidation, types.ChoiceFor, types.ChoiceAgainst)
	}

	now := e.clock.Now()
	err := e.store.Update([]string{keyTemperatureCheck(tcID)}, func(txn *store.Txn) error {
		var tc types.TemperatureCheck
		found, err := txn.Get(keyTemperatureCheck(tcID), &tc)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: temperature check %d", types.ErrNotFound, tcID)
		}
		if err := checkWindow(now, tc.Start, tc.Deadline); err != nil {
			return err
		}
		if _, voted := tc.Votes[account]; voted {
			return fmt.Errorf("%w: account %s already voted on temperature check %d",
				types.ErrAlreadyRecorded, account, tcID)
		}
		tc.Votes[account] = choice
		return txn.Set(keyTemperatureCheck(tcID), &tc)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("temperature check vote recorded",
		zap.Uint64("id", tcID),
		zap.String("account", account),
		zap.String("choice", string(choice)))
	e.emitter.Emit(events.Event{
		Topic: events.TopicTemperatureCheckVoted,
		At:    now,
		Payload: map[string]any{
			"id":      tcID,
			"account": account,
			"choice":  choice,
		},
	})
	return nil
}

// VoteOnProposal records a set of selected option ids for the account.
// The set must be non-empty, duplicate-free, within the ballot's selection
// cap, and every id must exist in the ballot's option list.
func (e *Engine) VoteOnProposal(account string, proof auth.Proof, propID uint64, selections []uint32) error {
	if err := e.presence.VerifyPresence(account, proof); err != nil {
		return err
	}

	now := e.clock.Now()
	err := e.store.Update([]string{keyProposal(propID)}, func(txn *store.Txn) error {
		var prop types.Proposal
		found, err := txn.Get(keyProposal(propID), &prop)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: proposal %d", types.ErrNotFound, propID)
		}
		if err := checkWindow(now, prop.Start, prop.Deadline); err != nil {
			return err
		}
		if _, voted := prop.Votes[account]; voted {
			return fmt.Errorf("%w: account %s already voted on proposal %d",
				types.ErrAlreadyRecorded, account, propID)
		}
		if err := validateSelections(&prop, selections); err != nil {
			return err
		}
		prop.Votes[account] = selections
		return txn.Set(keyProposal(propID), &prop)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("proposal vote recorded",
		zap.Uint64("id", propID),
		zap.String("account", account),
		zap.Uint32s("selections", selections))
	e.emitter.Emit(events.Event{
		Topic: events.TopicProposalVoted,
		At:    now,
		Payload: map[string]any{
			"id":         propID,
			"account":    account,
			"selections": selections,
		},
	})
	return nil
}

func checkWindow(now, start, deadline int64) error {
	if now < start {
		return fmt.Errorf("%w: voting has not started yet", types.ErrWindowClosed)
	}
	if now >= deadline {
		return fmt.Errorf("%w: voting has ended", types.ErrWindowClosed)
	}
	return nil
}

func validateSelections(prop *types.Proposal, selections []uint32) error {
	if len(selections) == 0 {
		return fmt.Errorf("%w: at least one option must be selected", types.ErrValidation)
	}
	limit := prop.SelectionCap()
	if uint32(len(selections)) > limit {
		return fmt.Errorf("%w: at most %d options may be selected", types.ErrValidation, limit)
	}
	seen := make(map[uint32]struct{}, len(selections))
	for _, id := range selections {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate option id %d", types.ErrValidation, id)
		}
		seen[id] = struct{}{}
		if !prop.HasOption(id) {
			return fmt.Errorf("%w: unknown option id %d", types.ErrValidation, id)
		}
	}
	return nil
}

// UpdateParams replaces the live parameter set used for future ballot
// creation. Privileged. Already-created ballots keep their snapshots.
func (e *Engine) UpdateParams(cred auth.Credential, params types.GovernanceParams) error {
	if err := e.gate.VerifyPrivileged(cred); err != nil {
		return err
	}
	err := e.store.Update([]string{keyParams}, func(txn *store.Txn) error {
		return txn.Set(keyParams, params)
	})
	if err != nil {
		return err
	}
	now := e.clock.Now()
	e.logger.Info("governance parameters updated")
	e.emitter.Emit(events.Event{
		Topic:   events.TopicParametersUpdated,
		At:      now,
		Payload: map[string]any{"params": params},
	})
	return nil
}

// Params returns the live parameter set.
func (e *Engine) Params() (types.GovernanceParams, error) {
	var params types.GovernanceParams
	err := e.store.View(func(txn *store.Txn) error {
		_, err := txn.Get(keyParams, &params)
		return err
	})
	return params, err
}

// TemperatureCheckCount returns the number of temperature checks created.
func (e *Engine) TemperatureCheckCount() (uint64, error) {
	return e.count(keyTCCount)
}

// ProposalCount returns the number of proposals created.
func (e *Engine) ProposalCount() (uint64, error) {
	return e.count(keyPropCount)
}

func (e *Engine) count(key string) (uint64, error) {
	var count uint64
	err := e.store.View(func(txn *store.Txn) error {
		_, err := txn.Get(key, &count)
		return err
	})
	return count, err
}

// TemperatureCheck returns the stored ballot by id.
func (e *Engine) TemperatureCheck(id uint64) (*types.TemperatureCheck, error) {
	var tc types.TemperatureCheck
	err := e.store.View(func(txn *store.Txn) error {
		found, err := txn.Get(keyTemperatureCheck(id), &tc)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: temperature check %d", types.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

// Proposal returns the stored proposal by id.
func (e *Engine) Proposal(id uint64) (*types.Proposal, error) {
	var prop types.Proposal
	err := e.store.View(func(txn *store.Txn) error {
		found, err := txn.Get(keyProposal(id), &prop)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: proposal %d", types.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &prop, nil
}
