package controller

import (
	"net/http"
	"strconv"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	govtypes "github.com/quorumdao/govx/pkg/types"
)

func pathID(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)[name], 10, 64)
}

// HandleTemperatureCheckCreate creates a straw poll from the posted draft.
func (c *Controller) HandleTemperatureCheckCreate(w http.ResponseWriter, r *http.Request) {
	var draft govtypes.TemperatureCheckDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	id, err := c.App.Gov.CreateTemperatureCheck(draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (c *Controller) HandleTemperatureCheckGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	tc, err := c.App.Gov.TemperatureCheck(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (c *Controller) HandleTemperatureCheckCount(w http.ResponseWriter, _ *http.Request) {
	count, err := c.App.Gov.TemperatureCheckCount()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

// HandleTemperatureCheckVote records a for/against vote. The presence proof
// travels in the Authorization header, the account and choice in the body.
func (c *Controller) HandleTemperatureCheckVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	var in struct {
		Account string          `json:"account"`
		Choice  govtypes.Choice `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := c.App.Gov.VoteOnTemperatureCheck(in.Account, presenceProof(r), id, in.Choice); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleElevate promotes a temperature check into a proposal. Privileged.
func (c *Controller) HandleElevate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	propID, err := c.App.Gov.Elevate(c.adminCredential(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"proposalId": propID})
}

func (c *Controller) HandleProposalGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	prop, err := c.App.Gov.Proposal(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

func (c *Controller) HandleProposalCount(w http.ResponseWriter, _ *http.Request) {
	count, err := c.App.Gov.ProposalCount()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

// HandleProposalVote records a set of selected option ids.
func (c *Controller) HandleProposalVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	var in struct {
		Account    string   `json:"account"`
		Selections []uint32 `json:"selections"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := c.App.Gov.VoteOnProposal(in.Account, presenceProof(r), id, in.Selections); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) HandleParamsGet(w http.ResponseWriter, _ *http.Request) {
	params, err := c.App.Gov.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// HandleParamsUpdate replaces the live parameter set. Privileged.
func (c *Controller) HandleParamsUpdate(w http.ResponseWriter, r *http.Request) {
	var params govtypes.GovernanceParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := c.App.Gov.UpdateParams(c.adminCredential(r), params); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
