package gov

import "fmt"

// Record keys. Ballot ids are dense zero-based counters per store, so the
// count key doubles as the next-id allocator.
const (
	keyParams    = "gov:params"
	keyTCCount   = "gov:tc:count"
	keyPropCount = "gov:prop:count"
)

func keyTemperatureCheck(id uint64) string {
	return fmt.Sprintf("gov:tc:%d", id)
}

func keyProposal(id uint64) string {
	return fmt.Sprintf("gov:prop:%d", id)
}
