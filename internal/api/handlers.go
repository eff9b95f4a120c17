package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/jdores/selfserve-egressip/internal/auth"
	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/pkg/httputil"
	"github.com/jdores/selfserve-egressip/internal/service/audit"
	"github.com/jdores/selfserve-egressip/internal/service/egress"
)

const (
	msgTransitionFailed = "Error updating egress policies, please try again"
	msgLogsFailed       = "Error loading audit logs"
	msgLoadFailed       = "Error loading egress locations, please try again"
	msgBusy             = "Another change for this user is in progress, please try again"
)

// EgressService is implemented by *egress.Service.
type EgressService interface {
	Select(ctx context.Context, identity, listID string) (*egress.TransitionResult, error)
	Reset(ctx context.Context, identity string) (*egress.TransitionResult, error)
	AdminAssign(ctx context.Context, admin, email, listID string) (*egress.TransitionResult, error)
	AdminRemove(ctx context.Context, admin, email string) (*egress.TransitionResult, error)
	CurrentAssignment(ctx context.Context, identity string) (*egress.AssignmentView, error)
	Memberships(ctx context.Context) (domain.MembershipSnapshot, error)
	Locations() []domain.EgressLocation
}

// AuditQuerier is implemented by *audit.Service.
type AuditQuerier interface {
	Query(ctx context.Context, cursor int64, limit int) (*domain.AuditPage, error)
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	egress EgressService
	audit  AuditQuerier
}

// NewHandlers creates handlers over the given services.
func NewHandlers(egressSvc EgressService, auditSvc AuditQuerier) *Handlers {
	return &Handlers{egress: egressSvc, audit: auditSvc}
}

type transitionResponse struct {
	Success bool `json:"success"`
	*egress.TransitionResult
}

type assignmentResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	*egress.AssignmentView
}

type membershipsResponse struct {
	Success     bool                      `json:"success"`
	Locations   []domain.EgressLocation   `json:"locations"`
	Memberships domain.MembershipSnapshot `json:"memberships"`
	Degraded    bool                      `json:"degraded"`
}

type logsResponse struct {
	Success bool `json:"success"`
	*domain.AuditPage
}

type selectRequest struct {
	ListID string `json:"listId"`
}

type adminAssignRequest struct {
	Email  string `json:"email"`
	ListID string `json:"listId"`
}

type adminRemoveRequest struct {
	Email string `json:"email"`
}

// GetAssignment returns the caller's current location and the choices.
//
//	GET /api/assignment
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	email, _ := auth.IdentityFromContext(r.Context())
	view, err := h.egress.CurrentAssignment(r.Context(), email)
	if err != nil {
		h.writeError(w, err, msgLoadFailed)
		return
	}
	httputil.OK(w, assignmentResponse{Success: true, Email: email, AssignmentView: view})
}

// Select assigns the caller to a location.
//
//	POST /select {"listId": "..."}
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	email, _ := auth.IdentityFromContext(r.Context())
	res, err := h.egress.Select(r.Context(), email, req.ListID)
	if err != nil {
		h.writeError(w, err, msgTransitionFailed)
		return
	}
	httputil.OK(w, transitionResponse{Success: true, TransitionResult: res})
}

// Reset returns the caller to the default egress.
//
//	POST /reset
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	email, _ := auth.IdentityFromContext(r.Context())
	res, err := h.egress.Reset(r.Context(), email)
	if err != nil {
		h.writeError(w, err, msgTransitionFailed)
		return
	}
	httputil.OK(w, transitionResponse{Success: true, TransitionResult: res})
}

// GetMemberships returns every list's members. Lists that could not be read
// are returned empty with degraded set.
//
//	GET /admin/memberships
func (h *Handlers) GetMemberships(w http.ResponseWriter, r *http.Request) {
	locations := h.egress.Locations()
	snap, err := h.egress.Memberships(r.Context())
	if err != nil {
		snap = make(domain.MembershipSnapshot, len(locations))
		for _, loc := range locations {
			snap[loc.ID] = domain.ListMembership{Name: loc.Name, Emails: []string{}, Degraded: true}
		}
	}
	httputil.OK(w, membershipsResponse{
		Success:     true,
		Locations:   locations,
		Memberships: snap,
		Degraded:    snap.Degraded(),
	})
}

// AdminAssign moves any user to a location.
//
//	POST /admin/assign {"email": "...", "listId": "..."}
func (h *Handlers) AdminAssign(w http.ResponseWriter, r *http.Request) {
	var req adminAssignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	admin, _ := auth.IdentityFromContext(r.Context())
	res, err := h.egress.AdminAssign(r.Context(), admin, req.Email, req.ListID)
	if err != nil {
		h.writeError(w, err, msgTransitionFailed)
		return
	}
	httputil.OK(w, transitionResponse{Success: true, TransitionResult: res})
}

// AdminRemove returns any user to the default egress.
//
//	POST /admin/remove {"email": "..."}
func (h *Handlers) AdminRemove(w http.ResponseWriter, r *http.Request) {
	var req adminRemoveRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	admin, _ := auth.IdentityFromContext(r.Context())
	res, err := h.egress.AdminRemove(r.Context(), admin, req.Email)
	if err != nil {
		h.writeError(w, err, msgTransitionFailed)
		return
	}
	httputil.OK(w, transitionResponse{Success: true, TransitionResult: res})
}

// GetLogs pages through the audit trail, newest first. A missing or
// unparsable cursor starts from the newest entry; a missing or unparsable
// limit uses the default page size.
//
//	GET /admin/logs?cursor=123&limit=50
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cursor int64
	if v := q.Get("cursor"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cursor = n
		}
	}
	limit := audit.DefaultPageSize
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	page, err := h.audit.Query(r.Context(), cursor, limit)
	if err != nil {
		httputil.InternalError(w, err, msgLogsFailed)
		return
	}
	httputil.OK(w, logsResponse{Success: true, AuditPage: page})
}

// writeError maps service errors to responses. Only validation messages are
// shown to the caller.
func (h *Handlers) writeError(w http.ResponseWriter, err error, publicMsg string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.BadRequest(w, verr.Message)
	case errors.Is(err, egress.ErrBusy):
		httputil.Error(w, http.StatusConflict, msgBusy)
	default:
		httputil.InternalError(w, err, publicMsg)
	}
}
