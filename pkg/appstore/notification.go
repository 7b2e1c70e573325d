package appstore

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/dmitrymomot/coachgate/pkg/subscription"
)

type notificationEnvelope struct {
	SignedPayload string `json:"signedPayload"`
}

type receiptBlock struct {
	LatestReceiptInfo  transactionList `json:"latest_receipt_info"`
	InApp              transactionList `json:"in_app"`
	PendingRenewalInfo []renewalInfo   `json:"pending_renewal_info"`
}

type notificationPayload struct {
	NotificationType      string    `json:"notification_type"`
	NotificationTypeV2    string    `json:"notificationType"`
	Subtype               string    `json:"subtype"`
	Environment           string    `json:"environment"`
	OriginalTransactionID string    `json:"originalTransactionId"`
	AutoRenewStatus       *flexBool `json:"auto_renew_status"`
	SignedDate            flexInt   `json:"signedDate"`

	UnifiedReceipt      *receiptBlock `json:"unified_receipt"`
	UnifiedReceiptCamel *receiptBlock `json:"unifiedReceipt"`
	receiptBlock

	Data *struct {
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo"`
	} `json:"data"`
}

func (p *notificationPayload) blocks() []*receiptBlock {
	return []*receiptBlock{p.UnifiedReceipt, p.UnifiedReceiptCamel, &p.receiptBlock}
}

// latest returns the last transaction of the first non-empty list.
func (p *notificationPayload) latest() (transactionInfo, bool) {
	for _, b := range p.blocks() {
		if b == nil {
			continue
		}
		for _, l := range []transactionList{b.LatestReceiptInfo, b.InApp} {
			if len(l) > 0 {
				return l[len(l)-1], true
			}
		}
	}
	return transactionInfo{}, false
}

func (p *notificationPayload) renewals() []renewalInfo {
	var out []renewalInfo
	for _, b := range p.blocks() {
		if b != nil {
			out = append(out, b.PendingRenewalInfo...)
		}
	}
	return out
}

// ParseNotification decodes a server notification body. verifier may be nil,
// in which case signed payloads are decoded without signature checks.
// The returned notification has an empty OriginalTransactionID when the
// payload carries none.
func ParseNotification(body []byte, verifier *JWSVerifier) (*subscription.Notification, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrUnparsablePayload, err)
	}

	raw := body
	if env.SignedPayload != "" {
		claims, err := verifier.decode(env.SignedPayload)
		if err != nil {
			return nil, err
		}
		raw = claims
	}

	var p notificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Join(ErrUnparsablePayload, err)
	}

	n := &subscription.Notification{
		Type:       first(p.NotificationType, p.NotificationTypeV2),
		Subtype:    p.Subtype,
		NotifiedAt: p.SignedDate.time(),
	}

	tx, found := p.latest()
	renewals := p.renewals()
	environment := p.Environment

	if p.Data != nil {
		environment = first(p.Data.Environment, environment)
		if p.Data.SignedTransactionInfo != "" {
			claims, err := verifier.decode(p.Data.SignedTransactionInfo)
			if err != nil {
				return nil, err
			}
			tx = transactionInfo{}
			if err := json.Unmarshal(claims, &tx); err != nil {
				return nil, errors.Join(ErrUnparsablePayload, err)
			}
			found = true
		}
		if p.Data.SignedRenewalInfo != "" {
			claims, err := verifier.decode(p.Data.SignedRenewalInfo)
			if err != nil {
				return nil, err
			}
			var r renewalInfo
			if err := json.Unmarshal(claims, &r); err != nil {
				return nil, errors.Join(ErrUnparsablePayload, err)
			}
			renewals = append(renewals, r)
		}
	}

	if !found {
		n.OriginalTransactionID = p.OriginalTransactionID
		return n, nil
	}

	n.OriginalTransactionID = first(tx.originalTransactionID(), p.OriginalTransactionID)
	n.Partial = subscription.Snapshot{
		ProductID:             tx.productID(),
		OriginalTransactionID: n.OriginalTransactionID,
		TransactionID:         tx.transactionID(),
		PurchaseTime:          tx.purchased(),
		ExpiresTime:           tx.expires(),
		IsTrial:               tx.trial(),
		IsIntroOffer:          tx.introOffer(),
		Explicit:              tx.explicit(),
		AutoRenewStatus:       p.AutoRenewStatus.ptr(),
		Environment:           parseEnvironment(first(tx.Environment, environment)),
		VerifiedAt:            n.NotifiedAt,
	}
	for _, r := range renewals {
		if r.originalTransactionID() == n.OriginalTransactionID || r.originalTransactionID() == "" {
			if s := r.status(); s != nil {
				n.Partial.AutoRenewStatus = s
			}
		}
	}
	return n, nil
}

func parseEnvironment(s string) subscription.Environment {
	switch strings.ToLower(s) {
	case "sandbox":
		return subscription.EnvSandbox
	case "prod", "production":
		return subscription.EnvProduction
	default:
		return ""
	}
}
