// Package callback settles registrations from VNPay return redirects and
// server-to-server notifications (IPN).
//
// Every callback is verified before anything else is read from it. A callback
// with a bad signature never reaches the ledger; it is logged, counted and
// emitted as a security audit event for fraud review.
package callback

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"racereg/internal/payment/metrics"
	"racereg/internal/payment/vnpay"
	"racereg/internal/registration/models"
	"racereg/internal/registration/service"
	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
	"racereg/pkg/platform/audit"
	"racereg/pkg/requestcontext"
)

const (
	channelReturn = "return"
	channelIPN    = "ipn"
)

// Verifier checks callback signatures and exposes the typed response.
type Verifier interface {
	ParseResponse(values url.Values) (*vnpay.Response, bool)
}

// Settler is the registration side of settlement.
type Settler interface {
	ConfirmPayment(ctx context.Context, regID id.RegistrationID, method, transactionNo string) error
	LookupPayment(ctx context.Context, regID id.RegistrationID) (*service.PaymentTarget, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Status is the result of a return callback.
type Status string

const (
	StatusConfirmed        Status = "confirmed"
	StatusFailed           Status = "failed"
	StatusInvalidSignature Status = "invalid_signature"
)

// Outcome describes what a return callback did.
type Outcome struct {
	Status         Status
	RegistrationID id.RegistrationID
	// Code is the gateway failure code when Status is StatusFailed.
	Code          string
	TransactionNo string
	// Replayed is set when the callback repeated an already settled one.
	Replayed bool
}

// Processor turns verified gateway callbacks into ledger transitions.
type Processor struct {
	verifier       Verifier
	settler        Settler
	guard          ReplayGuard
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(p *Processor) {
		p.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithReplayGuard short-circuits repeated successful callbacks.
func WithReplayGuard(g ReplayGuard) Option {
	return func(p *Processor) {
		p.guard = g
	}
}

func NewProcessor(verifier Verifier, settler Settler, opts ...Option) (*Processor, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if settler == nil {
		return nil, errors.New("settler is required")
	}
	p := &Processor{
		verifier: verifier,
		settler:  settler,
		logger:   slog.Default(),
		tracer:   otel.Tracer("racereg/payment"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process handles the browser return redirect. An invalid signature yields
// StatusInvalidSignature together with a CodeInvalidSignature error.
func (p *Processor) Process(ctx context.Context, values url.Values) (outcome Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, "payment.Process")
	defer func() {
		endSpan(span, err)
		p.metrics.IncrementOutcome(channelReturn, returnOutcome(outcome, err))
	}()

	resp, valid := p.verifier.ParseResponse(values)
	span.SetAttributes(attribute.String("txn_ref", resp.TxnRef))
	if !valid {
		p.rejectSignature(ctx, channelReturn, resp)
		return Outcome{Status: StatusInvalidSignature}, dErrors.New(dErrors.CodeInvalidSignature, "invalid payment signature")
	}

	regID, err := id.ParseRegistrationID(resp.TxnRef)
	if err != nil {
		return Outcome{}, dErrors.New(dErrors.CodeBadRequest, "invalid transaction reference")
	}

	if !resp.Succeeded() {
		p.recordFailure(ctx, channelReturn, regID, resp)
		return Outcome{Status: StatusFailed, RegistrationID: regID, Code: resp.FailureCode(), TransactionNo: resp.TransactionNo}, nil
	}

	replayed, err := p.settle(ctx, channelReturn, regID, resp.TransactionNo)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusConfirmed, RegistrationID: regID, TransactionNo: resp.TransactionNo, Replayed: replayed}, nil
}

// IPN response codes defined by the gateway.
const (
	RspConfirmed        = "00"
	RspOrderNotFound    = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidSignature = "97"
	RspUnknown          = "99"
)

// IPNResponse is the JSON body the gateway expects from the notification URL.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// ProcessIPN handles a server-to-server notification. It always answers with
// a gateway response code; the gateway retries anything but 00 and 02.
func (p *Processor) ProcessIPN(ctx context.Context, values url.Values) (rsp IPNResponse) {
	ctx, span := p.tracer.Start(ctx, "payment.ProcessIPN")
	defer func() {
		span.SetAttributes(attribute.String("rsp_code", rsp.RspCode))
		span.End()
		p.metrics.IncrementOutcome(channelIPN, rsp.RspCode)
	}()

	resp, valid := p.verifier.ParseResponse(values)
	span.SetAttributes(attribute.String("txn_ref", resp.TxnRef))
	if !valid {
		p.rejectSignature(ctx, channelIPN, resp)
		return IPNResponse{RspCode: RspInvalidSignature, Message: "Invalid signature"}
	}

	regID, err := id.ParseRegistrationID(resp.TxnRef)
	if err != nil {
		return IPNResponse{RspCode: RspOrderNotFound, Message: "Order not found"}
	}
	target, err := p.settler.LookupPayment(ctx, regID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return IPNResponse{RspCode: RspOrderNotFound, Message: "Order not found"}
		}
		p.logger.ErrorContext(ctx, "ipn lookup failed",
			"registration_id", regID,
			"error", err,
		)
		return IPNResponse{RspCode: RspUnknown, Message: "Unknown error"}
	}
	if target.Amount != resp.Amount {
		p.logger.WarnContext(ctx, "ipn amount mismatch",
			"registration_id", regID,
			"expected_amount", target.Amount,
			"reported_amount", resp.Amount,
		)
		return IPNResponse{RspCode: RspInvalidAmount, Message: "Invalid amount"}
	}
	if target.Registration.PaymentStatus != models.PaymentStatusPending {
		return IPNResponse{RspCode: RspAlreadyConfirmed, Message: "Order already confirmed"}
	}

	if !resp.Succeeded() {
		p.recordFailure(ctx, channelIPN, regID, resp)
		return IPNResponse{RspCode: RspConfirmed, Message: "Confirm Success"}
	}

	if _, err := p.settle(ctx, channelIPN, regID, resp.TransactionNo); err != nil {
		switch dErrors.GetCode(err) {
		case dErrors.CodeAlreadyPaid, dErrors.CodeAlreadyCancelled:
			return IPNResponse{RspCode: RspAlreadyConfirmed, Message: "Order already confirmed"}
		case dErrors.CodeNotFound:
			return IPNResponse{RspCode: RspOrderNotFound, Message: "Order not found"}
		}
		p.logger.ErrorContext(ctx, "ipn settlement failed",
			"registration_id", regID,
			"error", err,
		)
		return IPNResponse{RspCode: RspUnknown, Message: "Unknown error"}
	}
	return IPNResponse{RspCode: RspConfirmed, Message: "Confirm Success"}
}

// settle confirms the payment once per (registration, transaction). A claim
// that is already held is only trusted when the ledger shows the registration
// settled by the same transaction; otherwise the confirmation runs anyway.
func (p *Processor) settle(ctx context.Context, channel string, regID id.RegistrationID, transactionNo string) (replayed bool, err error) {
	key := replayKey(regID, transactionNo)
	claimed := true
	if p.guard != nil && transactionNo != "" {
		claimed, err = p.guard.Claim(ctx, key)
		if err != nil {
			p.logger.WarnContext(ctx, "replay guard unavailable, settling without it",
				"registration_id", regID,
				"error", err,
			)
			claimed = true
		}
	}

	if !claimed {
		target, lookupErr := p.settler.LookupPayment(ctx, regID)
		if lookupErr == nil && target.Registration.SettledBy(transactionNo) {
			p.metrics.IncrementReplay()
			p.logger.InfoContext(ctx, "replayed payment callback",
				"registration_id", regID,
				"transaction_no", transactionNo,
				"channel", channel,
			)
			return true, nil
		}
	}

	if err := p.settler.ConfirmPayment(ctx, regID, service.PaymentMethodVNPay, transactionNo); err != nil {
		if p.guard != nil && claimed && transactionNo != "" {
			if releaseErr := p.guard.Release(ctx, key); releaseErr != nil {
				p.logger.WarnContext(ctx, "failed to release replay claim",
					"registration_id", regID,
					"error", releaseErr,
				)
			}
		}
		return false, err
	}
	return false, nil
}

func (p *Processor) rejectSignature(ctx context.Context, channel string, resp *vnpay.Response) {
	p.metrics.IncrementInvalidSignature()
	p.logger.WarnContext(ctx, "payment callback with invalid signature",
		"channel", channel,
		"txn_ref", resp.TxnRef,
		"amount", resp.Amount,
		"response_code", resp.ResponseCode,
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	p.emit(ctx, audit.Event{
		Subject:  resp.TxnRef,
		Action:   string(audit.EventPaymentSignatureInvalid),
		Decision: "rejected",
		Reason:   channel,
	})
}

func (p *Processor) recordFailure(ctx context.Context, channel string, regID id.RegistrationID, resp *vnpay.Response) {
	code := resp.FailureCode()
	p.logger.InfoContext(ctx, "payment failed at gateway",
		"registration_id", regID,
		"code", code,
		"description", vnpay.Describe(code),
		"channel", channel,
	)
	p.emit(ctx, audit.Event{
		Subject:  regID.String(),
		Action:   string(audit.EventPaymentFailed),
		Decision: "failed",
		Reason:   code,
	})
}

func (p *Processor) emit(ctx context.Context, event audit.Event) {
	if p.auditPublisher == nil {
		return
	}
	event.IP = requestcontext.ClientIP(ctx)
	if err := p.auditPublisher.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to emit audit event",
			"event", event.Action,
			"error", err,
		)
	}
}

func returnOutcome(outcome Outcome, err error) string {
	if outcome.Status != "" {
		return string(outcome.Status)
	}
	return string(dErrors.GetCode(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.GetCode(err)))
	}
	span.End()
}

func replayKey(regID id.RegistrationID, transactionNo string) string {
	return regID.String() + ":" + transactionNo
}
