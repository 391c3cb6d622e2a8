package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/watchtower/internal/adapters/mq/queue"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/ratelimit"
)

// Rate limiter resource classes guarded by the API.
const (
	ResourceRun     = "run"
	ResourceCompare = "compare"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// TrackersHandler serves tracker runs.
type TrackersHandler struct {
	deps    Dependencies
	limiter ratelimit.Limiter
	claims  ClaimsProvider
}

// NewTrackersHandler creates a new trackers handler.
func NewTrackersHandler(deps Dependencies, limiter ratelimit.Limiter, claims ClaimsProvider) *TrackersHandler {
	return &TrackersHandler{deps: deps, limiter: limiter, claims: claims}
}

type queuedResponse struct {
	Status    string `json:"status"`
	TrackerID string `json:"tracker_id"`
}

// HandleRun handles POST /trackers/{id}/run. With ?async=true the run is
// queued and 202 is returned; otherwise the run executes in the request and
// its record is returned, including failed runs.
func (h *TrackersHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_tracker"
	ctx := r.Context()

	claims, ok := h.authorize(w, r, ResourceRun)
	if !ok {
		return
	}
	t, ok := h.visibleTracker(w, r, claims)
	if !ok {
		return
	}
	if t.Status != model.TrackerActive {
		writeError(w, http.StatusConflict, "tracker_not_active", nil)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := h.deps.Enqueue(ctx, t.ID); err != nil {
			if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
				err = WrapKind(op, ErrBackpressure, err)
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", TrackerID: t.ID})
		return
	}

	run, err := h.deps.RunTracker(ctx, t.ID)
	if err != nil && run.ID == "" {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleListRuns handles GET /trackers/{id}/runs?limit=N.
func (h *TrackersHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_runs"

	claims, err := h.claims.Claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n <= 0 || n > maxRunsLimit {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	t, ok := h.visibleTracker(w, r, claims)
	if !ok {
		return
	}
	runs, err := h.deps.ListRuns(r.Context(), t.ID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type trackerResponse struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"owner_id"`
	Visibility   model.Visibility    `json:"visibility"`
	Mode         model.Mode          `json:"mode"`
	Status       model.TrackerStatus `json:"status"`
	Target       model.TargetSpec    `json:"target"`
	Analysis     model.AnalysisSpec  `json:"analysis"`
	Schedule     model.Schedule      `json:"schedule"`
	Notification model.Notification  `json:"notification"`
}

// HandleGetTracker handles GET /trackers/{id}.
func (h *TrackersHandler) HandleGetTracker(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claims.Claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
		return
	}
	t, ok := h.visibleTracker(w, r, claims)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trackerResponse{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Visibility:   t.Visibility,
		Mode:         t.Mode,
		Status:       t.Status,
		Target:       model.SpecOfTarget(t.Target),
		Analysis:     model.SpecOfAnalysis(t.Analysis),
		Schedule:     t.Schedule,
		Notification: t.Notification,
	})
}

// authorize resolves claims and consumes one call of resource.
func (h *TrackersHandler) authorize(w http.ResponseWriter, r *http.Request, resource string) (model.UserClaims, bool) {
	return authorize(w, r, h.claims, h.limiter, resource)
}

// visibleTracker loads the path tracker. Personal trackers are visible to
// their owner and admins only; others get 404.
func (h *TrackersHandler) visibleTracker(w http.ResponseWriter, r *http.Request, claims model.UserClaims) (model.Tracker, bool) {
	const op = "api.tracker"
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return model.Tracker{}, false
	}
	t, err := h.deps.GetTracker(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return model.Tracker{}, false
	}
	if t.Visibility != model.VisibilityShared && t.OwnerID != claims.UserID && !claims.IsAdmin() {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return model.Tracker{}, false
	}
	return t, true
}

func authorize(w http.ResponseWriter, r *http.Request, cp ClaimsProvider, limiter ratelimit.Limiter, resource string) (model.UserClaims, bool) {
	claims, err := cp.Claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
		return model.UserClaims{}, false
	}
	if limiter != nil {
		if err := limiter.Consume(r.Context(), claims, resource); err != nil {
			writeDomainError(w, err)
			return model.UserClaims{}, false
		}
	}
	return claims, true
}
