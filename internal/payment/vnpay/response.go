package vnpay

import "strconv"

// CodeSuccess is the response and transaction status code for a settled payment.
const CodeSuccess = "00"

// Response is the typed view of a signed gateway return or IPN.
type Response struct {
	TxnRef            string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	PayDate           string
	Params            Params
}

func newResponse(p Params) *Response {
	amount, err := strconv.ParseInt(p[ParamAmount], 10, 64)
	if err != nil {
		amount = 0
	}
	return &Response{
		TxnRef:            p[ParamTxnRef],
		Amount:            amount,
		ResponseCode:      p[ParamResponseCode],
		TransactionStatus: p[ParamTransactionStatus],
		TransactionNo:     p[ParamTransactionNo],
		BankCode:          p[ParamBankCode],
		PayDate:           p[ParamPayDate],
		Params:            p,
	}
}

// Succeeded reports whether the gateway settled the payment. The return
// redirect does not always carry vnp_TransactionStatus; when present it must
// also be 00.
func (r *Response) Succeeded() bool {
	if r.ResponseCode != CodeSuccess {
		return false
	}
	return r.TransactionStatus == "" || r.TransactionStatus == CodeSuccess
}

// FailureCode is the code shown to the runner for an unsuccessful payment.
func (r *Response) FailureCode() string {
	if r.ResponseCode != CodeSuccess || r.TransactionStatus == "" {
		return r.ResponseCode
	}
	return r.TransactionStatus
}

var responseMessages = map[string]string{
	"00": "Transaction successful",
	"07": "Amount debited; transaction flagged as suspicious",
	"09": "Card or account is not registered for internet banking",
	"10": "Card or account verification failed more than three times",
	"11": "Payment window expired",
	"12": "Card or account is locked",
	"13": "Incorrect one-time password",
	"24": "Customer cancelled the transaction",
	"51": "Insufficient balance",
	"65": "Daily transaction limit exceeded",
	"75": "Issuing bank is under maintenance",
	"79": "Too many incorrect payment password attempts",
	"99": "Unknown gateway error",
}

// Describe returns a human readable message for a gateway response code.
func Describe(code string) string {
	if msg, ok := responseMessages[code]; ok {
		return msg
	}
	return responseMessages["99"]
}
