package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"racereg/internal/registration/models"
	"racereg/internal/registration/service"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/httputil"
	"racereg/pkg/requestcontext"
)

// Service is the registration use-case surface the handlers call.
type Service interface {
	Register(ctx context.Context, runnerID id.UserID, distanceID id.DistanceID) (*models.Registration, error)
	Cancel(ctx context.Context, regID id.RegistrationID, runnerID id.UserID) error
	CreatePaymentURL(ctx context.Context, req service.PaymentURLRequest) (string, error)
	AssignBibs(ctx context.Context, raceID id.RaceID, organizerID id.UserID) (models.BibAssignmentResult, error)
	ListMyRegistrations(ctx context.Context, runnerID id.UserID) ([]models.RegistrationSummary, error)
	DistanceAvailability(ctx context.Context, distanceID id.DistanceID) (*models.Availability, error)
}

// Handler exposes registration, cancellation, payment URLs and bib
// assignment over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the authenticated endpoints. The caller installs the auth
// middleware on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations", h.HandleRegister)
	r.Get("/registrations", h.HandleList)
	r.Post("/registrations/{id}/payment-url", h.HandlePaymentURL)
	r.Delete("/registrations/{id}", h.HandleCancel)
	r.Post("/races/{id}/assign-bibs", h.HandleAssignBibs)
}

// RegisterPublic mounts endpoints that need no authentication.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/distances/{id}/availability", h.HandleAvailability)
}

// HandleRegister handles POST /registrations.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	runnerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reg, err := h.service.Register(ctx, runnerID, req.ParsedDistanceID())
	if err != nil {
		h.logFailure(ctx, "registration failed", err,
			"runner_id", runnerID,
			"distance_id", req.DistanceID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration created",
		"request_id", requestID,
		"registration_id", reg.ID,
		"runner_id", runnerID,
	)
	httputil.WriteJSON(w, http.StatusOK, reg)
}

// HandleList handles GET /registrations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runnerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListMyRegistrations(ctx, runnerID)
	if err != nil {
		h.logFailure(ctx, "list registrations failed", err, "runner_id", runnerID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// HandlePaymentURL handles POST /registrations/{id}/payment-url. The body is
// optional.
func (h *Handler) HandlePaymentURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	runnerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	regID, err := id.ParseRegistrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req := &PaymentURLRequest{}
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		req, ok = httputil.DecodeAndPrepare[PaymentURLRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	paymentURL, err := h.service.CreatePaymentURL(ctx, service.PaymentURLRequest{
		RegistrationID: regID,
		RunnerID:       runnerID,
		ClientIP:       requestcontext.ClientIP(ctx),
		ReturnURL:      req.ReturnURL,
	})
	if err != nil {
		h.logFailure(ctx, "create payment url failed", err, "registration_id", regID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PaymentURLResponse{URL: paymentURL})
}

// HandleCancel handles DELETE /registrations/{id}.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runnerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	regID, err := id.ParseRegistrationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Cancel(ctx, regID, runnerID); err != nil {
		h.logFailure(ctx, "cancel registration failed", err,
			"registration_id", regID,
			"runner_id", runnerID,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignBibs handles POST /races/{id}/assign-bibs.
func (h *Handler) HandleAssignBibs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	organizerID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	raceID, err := id.ParseRaceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.AssignBibs(ctx, raceID, organizerID)
	if err != nil {
		h.logFailure(ctx, "assign bibs failed", err,
			"race_id", raceID,
			"organizer_id", organizerID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "bibs assigned",
		"request_id", requestcontext.RequestID(ctx),
		"race_id", raceID,
		"count", result.Count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleAvailability handles GET /distances/{id}/availability.
func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distanceID, err := id.ParseDistanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	availability, err := h.service.DistanceAvailability(ctx, distanceID)
	if err != nil {
		h.logFailure(ctx, "availability lookup failed", err, "distance_id", distanceID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, availability)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

// logFailure logs expected business outcomes at WARN and everything else at
// ERROR.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	switch dErrors.GetCode(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout, dErrors.CodeConfigurationMissing:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
}
