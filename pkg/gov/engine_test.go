package gov

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quorumdao/govx/pkg/auth"
	"github.com/quorumdao/govx/pkg/clock"
	"github.com/quorumdao/govx/pkg/events"
	"github.com/quorumdao/govx/pkg/store"
	"github.com/quorumdao/govx/pkg/types"
)

type allowPresence struct{}

func (allowPresence) VerifyPresence(string, auth.Proof) error { return nil }

type denyPresence struct{}

func (denyPresence) VerifyPresence(string, auth.Proof) error {
	return fmt.Errorf("%w: presence denied", types.ErrNotAuthorized)
}

type allowGate struct{}

func (allowGate) VerifyPrivileged(auth.Credential) error { return nil }

type denyGate struct{}

func (denyGate) VerifyPrivileged(auth.Credential) error {
	return fmt.Errorf("%w: privileged operation", types.ErrNotAuthorized)
}

func testParams() types.GovernanceParams {
	return types.GovernanceParams{
		TemperatureCheckDays:              7,
		TemperatureCheckQuorum:            1000,
		TemperatureCheckApprovalThreshold: 5000,
		TemperatureCheckProposeThreshold:  100,
		ProposalLengthDays:                14,
		ProposalQuorum:                    5000,
		ProposalApprovalThreshold:         5000,
	}
}

func newTestEngineWith(t *testing.T, presence auth.PresenceVerifier, gate auth.PrivilegedGate) (*Engine, *clock.Fixed) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st, err := store.OpenInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := &clock.Fixed{Unix: 1_700_000_000}
	eng, err := NewEngine(logger, st, clk, presence, gate, events.Nop{}, testParams())
	require.NoError(t, err)
	return eng, clk
}

func newTestEngine(t *testing.T) (*Engine, *clock.Fixed) {
	t.Helper()
	return newTestEngineWith(t, allowPresence{}, allowGate{})
}

func baseDraft() types.TemperatureCheckDraft {
	return types.TemperatureCheckDraft{
		Title:       "Fund the tooling working group",
		Description: "Quarterly budget for the tooling working group",
		VoteOptions: []types.VoteOption{
			{ID: 0, Label: "approve"},
			{ID: 1, Label: "reject"},
			{ID: 2, Label: "abstain"},
		},
	}
}

func TestCreateTemperatureCheckAssignsDenseIDs(t *testing.T) {
	eng, _ := newTestEngine(t)

	for want := uint64(0); want < 3; want++ {
		id, err := eng.CreateTemperatureCheck(baseDraft())
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	count, err := eng.TemperatureCheckCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestCreateTemperatureCheckSnapshotsParams(t *testing.T) {
	eng, _ := newTestEngine(t)

	first, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	updated := testParams()
	updated.TemperatureCheckQuorum = 9999
	updated.TemperatureCheckApprovalThreshold = 7500
	require.NoError(t, eng.UpdateParams("cred", updated))

	second, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	tc1, err := eng.TemperatureCheck(first)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tc1.Quorum)
	assert.Equal(t, types.Fraction(5000), tc1.ApprovalThreshold)

	tc2, err := eng.TemperatureCheck(second)
	require.NoError(t, err)
	assert.Equal(t, uint64(9999), tc2.Quorum)
	assert.Equal(t, types.Fraction(7500), tc2.ApprovalThreshold)
}

func TestCreateTemperatureCheckDeadline(t *testing.T) {
	eng, clk := newTestEngine(t)

	id, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	tc, err := eng.TemperatureCheck(id)
	require.NoError(t, err)
	assert.Equal(t, clk.Now(), tc.Start)
	assert.Equal(t, clk.Now()+7*86400, tc.Deadline)
}

func TestCreateTemperatureCheckValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	tooManyOptions := make([]types.VoteOption, types.MaxVoteOptions+1)
	for i := range tooManyOptions {
		tooManyOptions[i] = types.VoteOption{ID: uint32(i), Label: "opt"}
	}
	tooManyAttachments := make([]types.AttachmentRef, types.MaxAttachments+1)
	zero := uint32(0)

	tests := []struct {
		name   string
		mutate func(*types.TemperatureCheckDraft)
	}{
		{"empty title", func(d *types.TemperatureCheckDraft) { d.Title = "" }},
		{"empty description", func(d *types.TemperatureCheckDraft) { d.Description = "" }},
		{"no options", func(d *types.TemperatureCheckDraft) { d.VoteOptions = nil }},
		{"too many options", func(d *types.TemperatureCheckDraft) { d.VoteOptions = tooManyOptions }},
		{"too many attachments", func(d *types.TemperatureCheckDraft) { d.Attachments = tooManyAttachments }},
		{"zero max selections", func(d *types.TemperatureCheckDraft) { d.MaxSelections = &zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := baseDraft()
			tt.mutate(&d)
			_, err := eng.CreateTemperatureCheck(d)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	count, err := eng.TemperatureCheckCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVoteOnTemperatureCheck(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	require.NoError(t, eng.VoteOnTemperatureCheck("alice", "proof", id, types.ChoiceFor))
	require.NoError(t, eng.VoteOnTemperatureCheck("bob", "proof", id, types.ChoiceAgainst))

	tc, err := eng.TemperatureCheck(id)
	require.NoError(t, err)
	assert.Equal(t, types.ChoiceFor, tc.Votes["alice"])
	assert.Equal(t, types.ChoiceAgainst, tc.Votes["bob"])
}

func TestVoteOnTemperatureCheckNoRevision(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	require.NoError(t, eng.VoteOnTemperatureCheck("alice", "proof", id, types.ChoiceFor))
	err = eng.VoteOnTemperatureCheck("alice", "proof", id, types.ChoiceAgainst)
	assert.ErrorIs(t, err, types.ErrAlreadyRecorded)

	// first vote stands
	tc, err := eng.TemperatureCheck(id)
	require.NoError(t, err)
	assert.Equal(t, types.ChoiceFor, tc.Votes["alice"])
}

func TestVoteOnTemperatureCheckInvalidChoice(t *testing.T) {
	eng, _ := newTestEngine(t)
	id, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	err = eng.VoteOnTemperatureCheck("alice", "proof", id, "maybe")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestVoteOnTemperatureCheckNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.VoteOnTemperatureCheck("alice", "proof", 42, types.ChoiceFor)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestVoteWindow(t *testing.T) {
	eng, clk := newTestEngine(t)
	id, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)
	start := clk.Now()

	// voting opens at the start instant itself
	require.NoError(t, eng.VoteOnTemperatureCheck("alice", "proof", id, types.ChoiceFor))

	// before the start: closed
	clk.Unix = start - 10
	err = eng.VoteOnTemperatureCheck("bob", "proof", id, types.ChoiceFor)
	assert.ErrorIs(t, err, types.ErrWindowClosed)

	// one second before the deadline: still open
	clk.Unix = start + 7*86400 - 1
	require.NoError(t, eng.VoteOnTemperatureCheck("bob", "proof", id, types.ChoiceFor))

	// at the deadline: closed
	clk.Unix = start + 7*86400
	err = eng.VoteOnTemperatureCheck("carol", "proof", id, types.ChoiceFor)
	assert.ErrorIs(t, err, types.ErrWindowClosed)
}

func TestElevate(t *testing.T) {
	eng, clk := newTestEngine(t)
	tcID, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	propID, err := eng.Elevate("cred", tcID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), propID)

	tc, err := eng.TemperatureCheck(tcID)
	require.NoError(t, err)
	require.NotNil(t, tc.ElevatedProposalID)
	assert.Equal(t, propID, *tc.ElevatedProposalID)

	prop, err := eng.Proposal(propID)
	require.NoError(t, err)
	assert.Equal(t, tcID, prop.TemperatureCheckID)
	assert.Equal(t, tc.Title, prop.Title)
	assert.Equal(t, uint64(5000), prop.Quorum)
	assert.Equal(t, clk.Now(), prop.Start)
	assert.Equal(t, clk.Now()+14*86400, prop.Deadline)

	count, err := eng.ProposalCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestElevateOnlyOnce(t *testing.T) {
	eng, _ := newTestEngine(t)
	tcID, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	_, err = eng.Elevate("cred", tcID)
	require.NoError(t, err)
	_, err = eng.Elevate("cred", tcID)
	assert.ErrorIs(t, err, types.ErrAlreadyRecorded)

	count, err := eng.ProposalCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestElevateUnknown(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Elevate("cred", 42)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestElevateRequiresPrivilege(t *testing.T) {
	eng, _ := newTestEngineWith(t, allowPresence{}, denyGate{})
	tcID, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)

	_, err = eng.Elevate("cred", tcID)
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func elevated(t *testing.T, eng *Engine, draft types.TemperatureCheckDraft) uint64 {
	t.Helper()
	tcID, err := eng.CreateTemperatureCheck(draft)
	require.NoError(t, err)
	propID, err := eng.Elevate("cred", tcID)
	require.NoError(t, err)
	return propID
}

func TestVoteOnProposal(t *testing.T) {
	eng, _ := newTestEngine(t)
	propID := elevated(t, eng, baseDraft())

	require.NoError(t, eng.VoteOnProposal("alice", "proof", propID, []uint32{1}))

	prop, err := eng.Proposal(propID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, prop.Votes["alice"])
}

func TestVoteOnProposalSelectionRules(t *testing.T) {
	eng, _ := newTestEngine(t)
	single := elevated(t, eng, baseDraft())

	three := uint32(3)
	multiDraft := baseDraft()
	multiDraft.MaxSelections = &three
	multi := elevated(t, eng, multiDraft)

	tests := []struct {
		name       string
		prop       uint64
		selections []uint32
		wantErr    error
	}{
		{"single selection ok", single, []uint32{0}, nil},
		{"two over default cap", single, []uint32{0, 1}, types.ErrValidation},
		{"empty", single, nil, types.ErrValidation},
		{"unknown option", single, []uint32{9}, types.ErrValidation},
		{"one under multi cap", multi, []uint32{2}, nil},
		{"two under multi cap", multi, []uint32{0, 2}, nil},
		{"duplicate ids", multi, []uint32{1, 1}, types.ErrValidation},
	}
	account := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account++
			err := eng.VoteOnProposal(fmt.Sprintf("acct-%d", account), "proof", tt.prop, tt.selections)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVoteOnProposalNoRevision(t *testing.T) {
	eng, _ := newTestEngine(t)
	propID := elevated(t, eng, baseDraft())

	require.NoError(t, eng.VoteOnProposal("alice", "proof", propID, []uint32{0}))
	err := eng.VoteOnProposal("alice", "proof", propID, []uint32{1})
	assert.ErrorIs(t, err, types.ErrAlreadyRecorded)

	prop, err := eng.Proposal(propID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, prop.Votes["alice"])
}

func TestVoteOnProposalWindow(t *testing.T) {
	eng, clk := newTestEngine(t)
	propID := elevated(t, eng, baseDraft())

	clk.Advance(14 * 24 * time.Hour)
	err := eng.VoteOnProposal("alice", "proof", propID, []uint32{0})
	assert.ErrorIs(t, err, types.ErrWindowClosed)
}

func TestVotingRequiresPresence(t *testing.T) {
	eng, _ := newTestEngineWith(t, denyPresence{}, allowGate{})
	tcID, err := eng.CreateTemperatureCheck(baseDraft())
	require.NoError(t, err)
	propID, err := eng.Elevate("cred", tcID)
	require.NoError(t, err)

	err = eng.VoteOnTemperatureCheck("alice", "proof", tcID, types.ChoiceFor)
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
	err = eng.VoteOnProposal("alice", "proof", propID, []uint32{0})
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestUpdateParamsRequiresPrivilege(t *testing.T) {
	eng, _ := newTestEngineWith(t, allowPresence{}, denyGate{})
	err := eng.UpdateParams("cred", testParams())
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestCreateConcurrentWithParamUpdates(t *testing.T) {
	eng, _ := newTestEngine(t)

	const iterations = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			updated := testParams()
			updated.TemperatureCheckQuorum = uint64(i)
			assert.NoError(t, eng.UpdateParams("cred", updated))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_, err := eng.CreateTemperatureCheck(baseDraft())
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	count, err := eng.TemperatureCheckCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(iterations), count)
}

func TestElevateConcurrentWithParamUpdates(t *testing.T) {
	eng, _ := newTestEngine(t)

	const iterations = 100
	ids := make([]uint64, iterations)
	for i := range ids {
		id, err := eng.CreateTemperatureCheck(baseDraft())
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			updated := testParams()
			updated.ProposalQuorum = uint64(i)
			assert.NoError(t, eng.UpdateParams("cred", updated))
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			_, err := eng.Elevate("cred", id)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	count, err := eng.ProposalCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(iterations), count)
}

func TestParamsRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)

	params, err := eng.Params()
	require.NoError(t, err)
	assert.Equal(t, testParams(), params)

	updated := testParams()
	updated.ProposalLengthDays = 30
	require.NoError(t, eng.UpdateParams("cred", updated))

	params, err = eng.Params()
	require.NoError(t, err)
	assert.Equal(t, updated, params)
}
