package types

// Ballot limits shared by temperature checks and proposals.
const (
	MaxVoteOptions = 10
	MaxAttachments = 10
)

// Choice is the fixed binary ballot used by temperature checks.
type Choice string

const (
	ChoiceFor     Choice = "for"
	ChoiceAgainst Choice = "against"
)

// Valid reports whether the choice is one of the two recognized values.
func (c Choice) Valid() bool {
	return c == ChoiceFor || c == ChoiceAgainst
}

// VoteOption is a caller-assigned selectable entry on a ballot.
type VoteOption struct {
	ID    uint32 `json:"id"`
	Label string `json:"label"`
}

// AttachmentRef points at a file kept by an external storage component.
// The core carries it through untouched and never dereferences it.
type AttachmentRef struct {
	StoreKey  string `json:"storeKey"`
	Component string `json:"component"`
	Hash      string `json:"hash"`
}

// GovernanceParams is the live knob set snapshotted into each ballot at
// creation time. Quorum and propose thresholds are absolute vote counts;
// approval thresholds are fractions.
type GovernanceParams struct {
	TemperatureCheckDays              uint16   `json:"temperatureCheckDays"`
	TemperatureCheckQuorum            uint64   `json:"temperatureCheckQuorum"`
	TemperatureCheckApprovalThreshold Fraction `json:"temperatureCheckApprovalThreshold"`
	TemperatureCheckProposeThreshold  uint64   `json:"temperatureCheckProposeThreshold"`
	ProposalLengthDays                uint16   `json:"proposalLengthDays"`
	ProposalQuorum                    uint64   `json:"proposalQuorum"`
	ProposalApprovalThreshold         Fraction `json:"proposalApprovalThreshold"`
}

// TemperatureCheckDraft is the caller-supplied input for a new ballot.
type TemperatureCheckDraft struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	VoteOptions   []VoteOption    `json:"voteOptions"`
	Attachments   []AttachmentRef `json:"attachments"`
	ReferenceURL  string          `json:"referenceUrl"`
	MaxSelections *uint32         `json:"maxSelections,omitempty"`
}

// TemperatureCheck is the stored straw-poll ballot. Votes are keyed by
// account, one entry each, and are public by design.
type TemperatureCheck struct {
	ID                 uint64            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	VoteOptions        []VoteOption      `json:"voteOptions"`
	Attachments        []AttachmentRef   `json:"attachments"`
	ReferenceURL       string            `json:"referenceUrl"`
	Quorum             uint64            `json:"quorum"`
	ApprovalThreshold  Fraction          `json:"approvalThreshold"`
	MaxSelections      *uint32           `json:"maxSelections,omitempty"`
	Start              int64             `json:"start"`
	Deadline           int64             `json:"deadline"`
	Votes              map[string]Choice `json:"votes"`
	ElevatedProposalID *uint64           `json:"elevatedProposalId,omitempty"`
}

// Proposal is the binding ballot created by elevating a temperature check.
// Votes record the set of chosen option ids per account.
type Proposal struct {
	ID                 uint64              `json:"id"`
	TemperatureCheckID uint64              `json:"temperatureCheckId"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	VoteOptions        []VoteOption        `json:"voteOptions"`
	Attachments        []AttachmentRef     `json:"attachments"`
	ReferenceURL       string              `json:"referenceUrl"`
	Quorum             uint64              `json:"quorum"`
	ApprovalThreshold  Fraction            `json:"approvalThreshold"`
	MaxSelections      *uint32             `json:"maxSelections,omitempty"`
	Start              int64               `json:"start"`
	Deadline           int64               `json:"deadline"`
	Votes              map[string][]uint32 `json:"votes"`
}

// HasOption reports whether id is present in the ballot's option list.
func (p *Proposal) HasOption(id uint32) bool {
	for _, opt := range p.VoteOptions {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// SelectionCap returns the maximum number of options a single vote may
// select: MaxSelections when set, otherwise exactly one.
func (p *Proposal) SelectionCap() uint32 {
	if p.MaxSelections != nil {
		return *p.MaxSelections
	}
	return 1
}
