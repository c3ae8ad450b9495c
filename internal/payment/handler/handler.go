// Package handler exposes the VNPay return and IPN endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"racereg/internal/payment/callback"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/httputil"
	"racereg/pkg/requestcontext"
)

// Processor settles gateway callbacks.
type Processor interface {
	Process(ctx context.Context, values url.Values) (callback.Outcome, error)
	ProcessIPN(ctx context.Context, values url.Values) callback.IPNResponse
}

// Redirects are the pages the runner's browser lands on after the gateway.
type Redirects struct {
	SuccessURL string
	FailureURL string
}

type Handler struct {
	processor Processor
	redirects Redirects
	logger    *slog.Logger
}

func New(processor Processor, redirects Redirects, logger *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		redirects: redirects,
		logger:    logger,
	}
}

// Register mounts the public callback routes. The gateway signs every request
// so no authentication middleware applies.
func (h *Handler) Register(r chi.Router) {
	r.Get("/payments/callback", h.HandleReturn)
	r.Get("/payments/ipn", h.HandleIPN)
}

// HandleReturn handles the browser redirect back from the gateway and sends
// the runner on to the success or failure page.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome, err := h.processor.Process(ctx, r.URL.Query())
	if err != nil {
		code := dErrors.GetCode(err)
		if code != dErrors.CodeInvalidSignature {
			h.logger.WarnContext(ctx, "payment return not settled",
				"request_id", requestcontext.RequestID(ctx),
				"txn_ref", r.URL.Query().Get("vnp_TxnRef"),
				"error", err,
			)
		}
		h.redirect(w, r, h.redirects.FailureURL, url.Values{"error": {string(code)}})
		return
	}

	switch outcome.Status {
	case callback.StatusConfirmed:
		h.redirect(w, r, h.redirects.SuccessURL, url.Values{"regId": {outcome.RegistrationID.String()}})
	default:
		h.redirect(w, r, h.redirects.FailureURL, url.Values{
			"regId": {outcome.RegistrationID.String()},
			"code":  {outcome.Code},
		})
	}
}

// HandleIPN answers the gateway's server-to-server notification. The body is
// always 200 with a gateway response code.
func (h *Handler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	rsp := h.processor.ProcessIPN(r.Context(), r.URL.Query())
	httputil.WriteJSON(w, http.StatusOK, rsp)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	http.Redirect(w, r, withQuery(target, params), http.StatusFound)
}

// withQuery merges params into target's existing query string.
func withQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
