package types

// MaxDelegationEntries bounds a delegator's list, expired entries included.
// Expired entries are not swept; they stay until replaced or removed.
const MaxDelegationEntries = 50

// Delegation assigns a fraction of the delegator's voting weight to the
// delegatee until ValidUntil (unix seconds, exclusive upper bound).
type Delegation struct {
	Delegatee  string   `json:"delegatee"`
	Fraction   Fraction `json:"fraction"`
	ValidUntil int64    `json:"validUntil"`
}

// ActiveAt reports whether the delegation still counts toward the
// delegator's committed total at the given time.
func (d Delegation) ActiveAt(now int64) bool {
	return d.ValidUntil > now
}
