package appstore

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

// Status codes returned by verifyReceipt.
const (
	statusOK                = 0
	statusServerUnavailable = 21005
	statusSandboxReceipt    = 21007
	statusInternalMin       = 21100
	statusInternalMax       = 21199
)

func transientStatus(status int) bool {
	return status == statusServerUnavailable || (status >= statusInternalMin && status <= statusInternalMax)
}

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type verifyResponse struct {
	Status             int             `json:"status"`
	Environment        string          `json:"environment"`
	LatestReceiptInfo  transactionList `json:"latest_receipt_info"`
	InApp              transactionList `json:"in_app"`
	PendingRenewalInfo []renewalInfo   `json:"pending_renewal_info"`
	AutoRenewStatus    *flexBool       `json:"auto_renew_status"`
	Receipt            *struct {
		InApp transactionList `json:"in_app"`
	} `json:"receipt"`
}

func (r *verifyResponse) transactions() transactionList {
	switch {
	case len(r.LatestReceiptInfo) > 0:
		return r.LatestReceiptInfo
	case r.Receipt != nil && len(r.Receipt.InApp) > 0:
		return r.Receipt.InApp
	default:
		return r.InApp
	}
}

// autoRenew looks up the renewal intent for originalTransactionID, falling
// back to the top-level flag.
func (r *verifyResponse) autoRenew(originalTransactionID string) *bool {
	for _, p := range r.PendingRenewalInfo {
		if p.originalTransactionID() == originalTransactionID {
			if v := p.status(); v != nil {
				return v
			}
		}
	}
	return r.AutoRenewStatus.ptr()
}

// transactionInfo covers both the verifyReceipt (snake_case) and the App
// Store Server API (camelCase) transaction shapes.
type transactionInfo struct {
	ProductID             string    `json:"product_id"`
	TransactionID         string    `json:"transaction_id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	PurchaseDateMS        flexInt   `json:"purchase_date_ms"`
	ExpiresDateMS         flexInt   `json:"expires_date_ms"`
	IsTrialPeriod         *flexBool `json:"is_trial_period"`
	IsInIntroOfferPeriod  *flexBool `json:"is_in_intro_offer_period"`

	ProductIDCamel             string  `json:"productId"`
	TransactionIDCamel         string  `json:"transactionId"`
	OriginalTransactionIDCamel string  `json:"originalTransactionId"`
	PurchaseDate               flexInt `json:"purchaseDate"`
	ExpiresDate                flexInt `json:"expiresDate"`
	ExpiresDateMSCamel         flexInt `json:"expiresDateMs"`
	OfferType                  int     `json:"offerType"`
	OfferDiscountType          string  `json:"offerDiscountType"`
	Environment                string  `json:"environment"`
}

func (t transactionInfo) productID() string {
	return first(t.ProductID, t.ProductIDCamel)
}

func (t transactionInfo) transactionID() string {
	return first(t.TransactionID, t.TransactionIDCamel)
}

func (t transactionInfo) originalTransactionID() string {
	return first(t.OriginalTransactionID, t.OriginalTransactionIDCamel)
}

func (t transactionInfo) purchased() time.Time {
	return firstInt(t.PurchaseDateMS, t.PurchaseDate).time()
}

func (t transactionInfo) expires() *time.Time {
	ms := firstInt(t.ExpiresDateMS, t.ExpiresDate, t.ExpiresDateMSCamel)
	if ms == 0 {
		return nil
	}
	e := ms.time()
	return &e
}

func (t transactionInfo) trial() bool {
	return t.IsTrialPeriod.value() || t.OfferDiscountType == "FREE_TRIAL"
}

func (t transactionInfo) introOffer() bool {
	return t.IsInIntroOfferPeriod.value() || t.OfferType == 1
}

// explicit reports which offer flags the payload states. Signed transactions
// are complete, so a missing offer there means false.
func (t transactionInfo) explicit() subscription.Fields {
	signed := t.OriginalTransactionIDCamel != "" || t.TransactionIDCamel != ""
	var f subscription.Fields
	if t.IsTrialPeriod != nil || signed {
		f |= subscription.FieldTrial
	}
	if t.IsInIntroOfferPeriod != nil || signed {
		f |= subscription.FieldIntroOffer
	}
	return f
}

type renewalInfo struct {
	OriginalTransactionID      string    `json:"original_transaction_id"`
	AutoRenewStatus            *flexBool `json:"auto_renew_status"`
	OriginalTransactionIDCamel string    `json:"originalTransactionId"`
	AutoRenewStatusCamel       *flexBool `json:"autoRenewStatus"`
}

func (r renewalInfo) originalTransactionID() string {
	return first(r.OriginalTransactionID, r.OriginalTransactionIDCamel)
}

func (r renewalInfo) status() *bool {
	if r.AutoRenewStatus != nil {
		return r.AutoRenewStatus.ptr()
	}
	return r.AutoRenewStatusCamel.ptr()
}

// transactionList accepts a JSON array or a single object, since legacy
// notifications send latest_receipt_info as an object. Malformed entries are
// skipped, and a malformed list decodes as empty.
type transactionList []transactionInfo

func (l *transactionList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var one transactionInfo
		if err := json.Unmarshal(b, &one); err == nil {
			*l = transactionList{one}
		}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	list := make(transactionList, 0, len(raw))
	for _, item := range raw {
		var t transactionInfo
		if err := json.Unmarshal(item, &t); err != nil {
			continue
		}
		list = append(list, t)
	}
	*l = list
	return nil
}

// flexInt decodes integers sent either as JSON numbers or as strings.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		v = int64(f)
	}
	*n = flexInt(v)
	return nil
}

func (n flexInt) time() time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(n)).UTC()
}

// flexBool decodes true/false/1/0 sent as JSON booleans, numbers or strings.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	switch s {
	case "", "null":
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*f = flexBool(v)
	return nil
}

func (f *flexBool) value() bool {
	return f != nil && bool(*f)
}

func (f *flexBool) ptr() *bool {
	if f == nil {
		return nil
	}
	v := bool(*f)
	return &v
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...flexInt) flexInt {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
