package handler

import (
	"net/url"
	"strings"

	id "racereg/pkg/domain"
	dErrors "racereg/pkg/domain-errors"
)

// RegisterRequest is the body of POST /registrations.
type RegisterRequest struct {
	DistanceID string `json:"distance_id"`

	parsedDistanceID id.DistanceID
}

// Validate implements httputil.Validatable.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.DistanceID = strings.TrimSpace(r.DistanceID)
	if r.DistanceID == "" {
		return dErrors.New(dErrors.CodeValidation, "distance_id is required")
	}
	distanceID, err := id.ParseDistanceID(r.DistanceID)
	if err != nil {
		return err
	}
	r.parsedDistanceID = distanceID
	return nil
}

func (r *RegisterRequest) ParsedDistanceID() id.DistanceID {
	return r.parsedDistanceID
}

// maxReturnURLLength keeps the signed gateway URL within browser limits.
const maxReturnURLLength = 2048

// PaymentURLRequest is the optional body of POST /registrations/{id}/payment-url.
type PaymentURLRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

// Validate accepts an empty return URL or an absolute http(s) one.
func (r *PaymentURLRequest) Validate() error {
	if r == nil {
		return nil
	}
	r.ReturnURL = strings.TrimSpace(r.ReturnURL)
	if r.ReturnURL == "" {
		return nil
	}
	if len(r.ReturnURL) > maxReturnURLLength {
		return dErrors.New(dErrors.CodeBadRequest, "return_url is too long")
	}
	u, err := url.Parse(r.ReturnURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return dErrors.New(dErrors.CodeBadRequest, "return_url must be an absolute http(s) URL")
	}
	return nil
}

// PaymentURLResponse carries the gateway redirect.
type PaymentURLResponse struct {
	URL string `json:"url"`
}
