package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"wishlist_backend/internal/idempotency"
	"wishlist_backend/internal/metrics"
	"wishlist_backend/internal/money"
	"wishlist_backend/internal/service"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxContributeBody    = 4 << 10

	keyedContributeTimeout = 10 * time.Second
	cacheWriteTimeout      = 2 * time.Second
)

// Amounts are stored as NUMERIC(14,2).
var maxAmount = apd.New(1, 12)

type contributionService interface {
	Contribute(ctx context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) (*service.ContributionOutcome, error)
}

type ContributeRequestPayload struct {
	Amount decimalText `json:"amount" validate:"required,max=32"`
}

type ContributeResponsePayload struct {
	ItemID           uuid.UUID `json:"item_id"`
	ContributedTotal string    `json:"contributed_total"`
	TargetPrice      string    `json:"target_price"`
	ProgressPercent  float64   `json:"progress_percent"`
	AmountAdded      string    `json:"amount_added"`
}

type ContributionHandler struct {
	logger        logrus.FieldLogger
	contributions contributionService
	cache         idempotency.Cache
	sessions      *SessionResolver
	validator     *requestValidator
	metrics       *metrics.Metrics
	inflight      singleflight.Group
}

func NewContributionHandler(logger logrus.FieldLogger, contributions contributionService, cache idempotency.Cache, sessions *SessionResolver, m *metrics.Metrics) *ContributionHandler {
	return &ContributionHandler{
		logger:        logger,
		contributions: contributions,
		cache:         cache,
		sessions:      sessions,
		validator:     newRequestValidator(),
		metrics:       m,
	}
}

// Contribute handles POST /api/items/{itemID}/contribute. With an
// Idempotency-Key header a retried request gets the first response body back
// without a second write.
func (h *ContributionHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "itemID", h.logger)
	if !ok {
		return
	}

	var req ContributeRequestPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxContributeBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "Invalid request body: "+err.Error(), h.logger)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error(), h.logger)
		return
	}
	amount, err := money.Parse(string(req.Amount))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error(), h.logger)
		return
	}
	if amount.Cmp(maxAmount) >= 0 {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "amount is too large", h.logger)
		return
	}

	sessionID, err := h.sessions.Resolve(w, r)
	if err != nil {
		writeInternalError(w, err, h.logger)
		return
	}

	key, useKey := idempotency.NewKey(r.Header.Get(idempotencyKeyHeader), sessionID, itemID)
	if !useKey {
		res := h.contribute(r.Context(), itemID, sessionID, amount)
		writeRawJSON(w, res.status, res.body, h.logger)
		return
	}

	if body, hit := h.cache.Get(r.Context(), key); hit {
		h.metrics.IdempotencyReplays.Inc()
		writeRawJSON(w, http.StatusCreated, body, h.logger)
		return
	}

	// Requests sharing a key wait for the one already running. The work is
	// detached from the request so a client that hangs up after the write
	// still gets its response cached for the retry.
	v, _, _ := h.inflight.Do(flightKey(key), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), keyedContributeTimeout)
		defer cancel()

		if body, hit := h.cache.Get(ctx, key); hit {
			return contributeResult{status: http.StatusCreated, body: body, replayed: true}, nil
		}
		res := h.contribute(ctx, itemID, sessionID, amount)
		if res.status == http.StatusCreated {
			putCtx, putCancel := context.WithTimeout(ctx, cacheWriteTimeout)
			h.cache.Put(putCtx, key, res.body)
			putCancel()
		}
		return res, nil
	})
	res := v.(contributeResult)
	if res.replayed {
		h.metrics.IdempotencyReplays.Inc()
	}
	writeRawJSON(w, res.status, res.body, h.logger)
}

type contributeResult struct {
	status   int
	body     []byte
	replayed bool
}

func (h *ContributionHandler) contribute(ctx context.Context, itemID uuid.UUID, sessionID string, amount *apd.Decimal) contributeResult {
	outcome, err := h.contributions.Contribute(ctx, itemID, sessionID, amount)
	if err != nil {
		h.logger.WithError(err).Error("request failed")
		return contributeResult{status: http.StatusInternalServerError, body: errorBody(codeInternal, "An unexpected error occurred")}
	}
	if err := outcome.Err(); err != nil {
		code := codeInvalidRequest
		if errors.Is(err, service.ErrAlreadyFulfilled) {
			code = codeAlreadyFulfilled
		}
		return contributeResult{status: http.StatusBadRequest, body: errorBody(code, err.Error())}
	}

	body, err := json.Marshal(ContributeResponsePayload{
		ItemID:           itemID,
		ContributedTotal: money.Format(outcome.NewTotal),
		TargetPrice:      money.Format(outcome.Target),
		ProgressPercent:  money.PercentFloat(outcome.Progress),
		AmountAdded:      money.Format(amount),
	})
	if err != nil {
		h.logger.WithError(err).Error("failed to encode contribution")
		return contributeResult{status: http.StatusInternalServerError, body: errorBody(codeInternal, "An unexpected error occurred")}
	}
	return contributeResult{status: http.StatusCreated, body: body}
}

// flightKey joins the key parts with NUL, which cannot appear in a cookie
// value or a UUID.
func flightKey(k idempotency.Key) string {
	return k.ItemID.String() + "\x00" + k.SessionID + "\x00" + k.ClientKey
}
