package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/quorumdao/govx/app/api/types"
	"github.com/quorumdao/govx/pkg/auth"
	govtypes "github.com/quorumdao/govx/pkg/types"
	"github.com/quorumdao/govx/pkg/utils"
)

type Controller struct {
	App       *types.App
	Users     map[string]types.User
	JWTSecret []byte
}

// NewController returns a new controller. Bearer tokens are verified by the
// privileged gate, not here; the controller only owns the login identities
// and the session-cookie secret.
func NewController(app *types.App) *Controller {
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminUsersJSON := utils.Env("ADMIN_USERS", "")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(adminPass)
	users := map[string]types.User{}
	users[adminUser] = types.User{Username: adminUser, Hash: phash, Role: "admin"}
	if adminUsersJSON != "" {
		_ = json.Unmarshal([]byte(adminUsersJSON), &users)
	}

	return &Controller{
		App:       app,
		Users:     users,
		JWTSecret: jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Development: Echo back the origin to allow credentials with any origin
		// TODO: Restrict this in production to specific domains
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPut+", "+http.MethodDelete+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Admin session login/logout
	r.HandleFunc("/api/auth/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleAdminLogout).Methods(http.MethodPost)

	// Governance lifecycle. Creation is public; voting carries a presence
	// proof in the Authorization header; elevation and parameter updates
	// are privileged.
	r.HandleFunc("/api/temperature-checks", c.HandleTemperatureCheckCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/temperature-checks/count", c.HandleTemperatureCheckCount).Methods(http.MethodGet)
	r.HandleFunc("/api/temperature-checks/{id:[0-9]+}", c.HandleTemperatureCheckGet).Methods(http.MethodGet)
	r.HandleFunc("/api/temperature-checks/{id:[0-9]+}/votes", c.HandleTemperatureCheckVote).Methods(http.MethodPost)
	r.HandleFunc("/api/temperature-checks/{id:[0-9]+}/elevate", c.HandleElevate).Methods(http.MethodPost)
	r.HandleFunc("/api/proposals/count", c.HandleProposalCount).Methods(http.MethodGet)
	r.HandleFunc("/api/proposals/{id:[0-9]+}", c.HandleProposalGet).Methods(http.MethodGet)
	r.HandleFunc("/api/proposals/{id:[0-9]+}/votes", c.HandleProposalVote).Methods(http.MethodPost)
	r.HandleFunc("/api/params", c.HandleParamsGet).Methods(http.MethodGet)
	r.HandleFunc("/api/params", c.HandleParamsUpdate).Methods(http.MethodPut)

	// Delegation registry
	r.HandleFunc("/api/delegations", c.HandleDelegationMake).Methods(http.MethodPost)
	r.HandleFunc("/api/delegations/{delegator}/{delegatee}", c.HandleDelegationRemove).Methods(http.MethodDelete)
	r.HandleFunc("/api/delegations/{delegator}", c.HandleDelegationsList).Methods(http.MethodGet)
	r.HandleFunc("/api/delegatees/{delegatee}/delegators/{delegator}", c.HandleDelegateeDelegator).Methods(http.MethodGet)

	// WebSocket endpoint for real-time events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

// presenceProof extracts the bearer presence proof from the request.
func presenceProof(r *http.Request) auth.Proof {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return auth.Proof(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// adminCredential extracts the privileged credential: a bearer token when
// present, otherwise the admin session cookie.
func (c *Controller) adminCredential(r *http.Request) auth.Credential {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return auth.Credential(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return auth.Credential(cookie.Value)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, govtypes.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, govtypes.ErrNotAuthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, govtypes.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, govtypes.ErrWindowClosed), errors.Is(err, govtypes.ErrAlreadyRecorded):
		status = http.StatusConflict
	case errors.Is(err, govtypes.ErrCapExceeded):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
