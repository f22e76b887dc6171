package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	govtypes "github.com/quorumdao/govx/pkg/types"
)

// HandleDelegationMake upserts a delegation for the proven delegator.
func (c *Controller) HandleDelegationMake(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Delegator  string            `json:"delegator"`
		Delegatee  string            `json:"delegatee"`
		Fraction   govtypes.Fraction `json:"fraction"`
		ValidUntil int64             `json:"validUntil"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	err := c.App.Delegations.MakeDelegation(in.Delegator, presenceProof(r), in.Delegatee, in.Fraction, in.ValidUntil)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelegationRemove deletes the delegator's entry for the delegatee.
func (c *Controller) HandleDelegationRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := c.App.Delegations.RemoveDelegation(vars["delegator"], presenceProof(r), vars["delegatee"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelegationsList returns every entry the delegator holds, expired
// ones included.
func (c *Controller) HandleDelegationsList(w http.ResponseWriter, r *http.Request) {
	list, err := c.App.Delegations.Delegations(mux.Vars(r)["delegator"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelegateeDelegator is the reverse-index point lookup.
func (c *Controller) HandleDelegateeDelegator(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fraction, err := c.App.Delegations.DelegateeDelegator(vars["delegatee"], vars["delegator"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*govtypes.Fraction{"fraction": fraction})
}
