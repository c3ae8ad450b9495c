// Package vnpay implements the VNPay 2.1.0 redirect protocol: building signed
// payment URLs and verifying signed return/IPN parameters.
//
// Signing and verification share one canonicalization: parameters are sorted
// by key (byte order), empty values are dropped, keys and values are form
// encoded (UTF-8, space as '+') and joined as k=v pairs with '&'. The
// HMAC-SHA512 is computed over that encoded string.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"slices"
	"strings"

	dErrors "racereg/pkg/domain-errors"
)

// Parameter names used by the protocol.
const (
	ParamVersion           = "vnp_Version"
	ParamCommand           = "vnp_Command"
	ParamTmnCode           = "vnp_TmnCode"
	ParamAmount            = "vnp_Amount"
	ParamCreateDate        = "vnp_CreateDate"
	ParamExpireDate        = "vnp_ExpireDate"
	ParamCurrCode          = "vnp_CurrCode"
	ParamIPAddr            = "vnp_IpAddr"
	ParamLocale            = "vnp_Locale"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamOrderType         = "vnp_OrderType"
	ParamReturnURL         = "vnp_ReturnUrl"
	ParamTxnRef            = "vnp_TxnRef"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamTransactionNo     = "vnp_TransactionNo"
	ParamBankCode          = "vnp_BankCode"
	ParamPayDate           = "vnp_PayDate"
	ParamSecureHash        = "vnp_SecureHash"
	ParamSecureHashType    = "vnp_SecureHashType"
)

const (
	paramPrefix    = "vnp_"
	secureHashType = "HMACSHA512"
)

// Params is a flat parameter set as sent to, or received from, the gateway.
type Params map[string]string

// FromValues keeps the first non-empty value of every vnp_ key in values.
// Anything else in the query string is ignored.
func FromValues(values url.Values) Params {
	p := make(Params, len(values))
	for k, vs := range values {
		if !strings.HasPrefix(k, paramPrefix) || len(vs) == 0 || vs[0] == "" {
			continue
		}
		p[k] = vs[0]
	}
	return p
}

// Canonical returns the encoded, sorted query string that is signed.
func Canonical(p Params) string {
	keys := make([]string, 0, len(p))
	for k, v := range p {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of data keyed by secret.
func Sign(data, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildRequestURL signs p and returns
// baseURL?<canonical>&vnp_SecureHashType=HMACSHA512&vnp_SecureHash=<hex>.
// Any hash parameters already present in p are not signed.
func BuildRequestURL(baseURL string, p Params, hashSecret string) (string, error) {
	if baseURL == "" {
		return "", dErrors.New(dErrors.CodeConfigurationMissing, "payment gateway URL is not configured")
	}
	if hashSecret == "" {
		return "", dErrors.New(dErrors.CodeConfigurationMissing, "payment gateway hash secret is not configured")
	}
	query := Canonical(signedSet(p))
	hash := Sign(query, hashSecret)

	var b strings.Builder
	b.Grow(len(baseURL) + len(query) + len(hash) + 64)
	b.WriteString(baseURL)
	b.WriteByte('?')
	b.WriteString(query)
	b.WriteString("&" + ParamSecureHashType + "=" + secureHashType)
	b.WriteString("&" + ParamSecureHash + "=" + hash)
	return b.String(), nil
}

// ValidateSignature recomputes the signature over p without the hash
// parameters and compares it, case-insensitively, to p's vnp_SecureHash.
// It reports false for a missing hash, an empty secret or any mismatch.
func ValidateSignature(p Params, hashSecret string) bool {
	received := strings.ToLower(p[ParamSecureHash])
	if received == "" || hashSecret == "" {
		return false
	}
	if t := p[ParamSecureHashType]; t != "" && !strings.EqualFold(t, secureHashType) {
		return false
	}
	expected := Sign(Canonical(signedSet(p)), hashSecret)
	return hmac.Equal([]byte(received), []byte(expected))
}

func signedSet(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		if k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		out[k] = v
	}
	return out
}
