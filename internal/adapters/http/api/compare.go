package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/internal/domain/movement"
	"github.com/okian/watchtower/internal/domain/ratelimit"
)

const maxCompareBody = 1 << 20

// CompareHandler compares the movement of two price series.
type CompareHandler struct {
	limiter ratelimit.Limiter
	claims  ClaimsProvider
}

// NewCompareHandler creates a new compare handler.
func NewCompareHandler(limiter ratelimit.Limiter, claims ClaimsProvider) *CompareHandler {
	return &CompareHandler{limiter: limiter, claims: claims}
}

type compareRequest struct {
	Left  model.PriceHistory `json:"left"`
	Right model.PriceHistory `json:"right"`
}

type compareResponse struct {
	Left       movement.Summary    `json:"left"`
	Right      movement.Summary    `json:"right"`
	Comparison movement.Comparison `json:"comparison"`
}

// HandleCompare handles POST /movement/compare.
func (h *CompareHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare"
	if _, ok := authorize(w, r, h.claims, h.limiter, ResourceCompare); !ok {
		return
	}

	var req compareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompareBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	left, right, cmp := movement.CompareHistories(req.Left, req.Right)
	writeJSON(w, http.StatusOK, compareResponse{Left: left, Right: right, Comparison: cmp})
}
