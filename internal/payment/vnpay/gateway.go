package vnpay

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "racereg/pkg/domain-errors"
)

const (
	// Version is the protocol version this package speaks.
	Version = "2.1.0"

	commandPay       = "pay"
	currencyVND      = "VND"
	orderTypeOther   = "other"
	defaultLocale    = "vn"
	timestampLayout  = "20060102150405"
	loopbackIPv4     = "127.0.0.1"
	orderInfoPattern = "Thanh toan dang ky ID %s"
)

// The gateway interprets timestamps in Indochina Time.
var gatewayZone = time.FixedZone("ICT", 7*60*60)

// Config holds merchant credentials issued by VNPay.
type Config struct {
	BaseURL    string
	TmnCode    string
	HashSecret string
	ReturnURL  string
	Locale     string
	// PaymentTTL adds vnp_ExpireDate when positive.
	PaymentTTL time.Duration
}

// Gateway builds payment URLs and verifies callbacks for one merchant.
type Gateway struct {
	cfg Config
}

// NewGateway validates cfg. Missing credentials are a deployment problem and
// are reported as CodeConfigurationMissing.
func NewGateway(cfg Config) (*Gateway, error) {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "url")
	}
	if cfg.TmnCode == "" {
		missing = append(missing, "tmn code")
	}
	if cfg.HashSecret == "" {
		missing = append(missing, "hash secret")
	}
	if cfg.ReturnURL == "" {
		missing = append(missing, "return url")
	}
	if len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeConfigurationMissing,
			"vnpay configuration missing: "+strings.Join(missing, ", "))
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}
	return &Gateway{cfg: cfg}, nil
}

// PaymentRequest describes one payment attempt.
type PaymentRequest struct {
	TxnRef string
	// Amount in minor units (VND x 100).
	Amount    int64
	OrderInfo string
	ClientIP  string
	// ReturnURL overrides the configured return URL when set.
	ReturnURL string
	CreatedAt time.Time
}

// PaymentURL returns the signed redirect URL for req.
func (g *Gateway) PaymentURL(req PaymentRequest) (string, error) {
	if req.TxnRef == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "transaction reference is required")
	}
	if req.Amount <= 0 {
		return "", dErrors.New(dErrors.CodeBadRequest, "payment amount must be positive")
	}
	return BuildRequestURL(g.cfg.BaseURL, g.requestParams(req), g.cfg.HashSecret)
}

func (g *Gateway) requestParams(req PaymentRequest) Params {
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.In(gatewayZone)

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = g.cfg.ReturnURL
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = fmt.Sprintf(orderInfoPattern, req.TxnRef)
	}

	p := Params{
		ParamVersion:    Version,
		ParamCommand:    commandPay,
		ParamTmnCode:    g.cfg.TmnCode,
		ParamAmount:     strconv.FormatInt(req.Amount, 10),
		ParamCreateDate: created.Format(timestampLayout),
		ParamCurrCode:   currencyVND,
		ParamIPAddr:     NormalizeIP(req.ClientIP),
		ParamLocale:     g.cfg.Locale,
		ParamOrderInfo:  orderInfo,
		ParamOrderType:  orderTypeOther,
		ParamReturnURL:  returnURL,
		ParamTxnRef:     req.TxnRef,
	}
	if g.cfg.PaymentTTL > 0 {
		p[ParamExpireDate] = created.Add(g.cfg.PaymentTTL).Format(timestampLayout)
	}
	return p
}

// ParseResponse extracts the vnp_ parameters from a return or IPN query and
// reports whether their signature is valid. The Response is populated even
// when the signature is invalid so callers can log what was received.
func (g *Gateway) ParseResponse(values url.Values) (*Response, bool) {
	p := FromValues(values)
	return newResponse(p), ValidateSignature(p, g.cfg.HashSecret)
}

// NormalizeIP renders the client address the way the gateway expects:
// IPv4 where possible, loopback for ::1 or an empty address.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "::1" {
		return loopbackIPv4
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		if v4 := parsed.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ip
}
