package subscription

import "time"

type Environment string

const (
	EnvProduction Environment = "production"
	EnvSandbox    Environment = "sandbox"
)

// Snapshot is a normalized view of one subscription transaction.
type Snapshot struct {
	ProductID             string      `json:"productId"`
	OriginalTransactionID string      `json:"originalTransactionId"`
	TransactionID         string      `json:"transactionId,omitempty"`
	PurchaseTime          time.Time   `json:"purchaseTime"`
	ExpiresTime           *time.Time  `json:"expiresTime,omitempty"` // nil for non-renewing products
	IsTrial               bool        `json:"isTrial"`
	IsIntroOffer          bool        `json:"isIntroOffer"`
	AutoRenewStatus       *bool       `json:"autoRenewStatus,omitempty"` // nil when the source did not say
	Environment           Environment `json:"environment"`
	VerifiedAt            time.Time   `json:"verifiedAt"`

	// Explicit lists the boolean fields a partial states, so that a false
	// value still overwrites on merge.
	Explicit Fields `json:"-"`
}

// Fields is a set of boolean snapshot fields.
type Fields uint8

const (
	FieldTrial Fields = 1 << iota
	FieldIntroOffer
)

// Has reports whether f contains every field in mask.
func (f Fields) Has(mask Fields) bool {
	return f&mask == mask
}

// IsActiveAt reports whether the subscription is paid through now.
func (s Snapshot) IsActiveAt(now time.Time) bool {
	return s.ExpiresTime != nil && s.ExpiresTime.After(now)
}

// notOlderThan compares (ExpiresTime, VerifiedAt) lexicographically.
// A nil expiry is older than any expiry.
func (s Snapshot) notOlderThan(other Snapshot) bool {
	switch {
	case s.ExpiresTime == nil && other.ExpiresTime != nil:
		return false
	case s.ExpiresTime != nil && other.ExpiresTime == nil:
		return true
	case s.ExpiresTime != nil && !s.ExpiresTime.Equal(*other.ExpiresTime):
		return s.ExpiresTime.After(*other.ExpiresTime)
	}
	return !s.VerifiedAt.Before(other.VerifiedAt)
}

// merge overlays the non-zero or explicit fields of partial onto s.
func (s Snapshot) merge(partial Snapshot) Snapshot {
	if partial.ProductID != "" {
		s.ProductID = partial.ProductID
	}
	if partial.OriginalTransactionID != "" {
		s.OriginalTransactionID = partial.OriginalTransactionID
	}
	if partial.TransactionID != "" {
		s.TransactionID = partial.TransactionID
	}
	if !partial.PurchaseTime.IsZero() {
		s.PurchaseTime = partial.PurchaseTime
	}
	if partial.ExpiresTime != nil {
		t := *partial.ExpiresTime
		s.ExpiresTime = &t
	}
	if partial.IsTrial || partial.Explicit.Has(FieldTrial) {
		s.IsTrial = partial.IsTrial
	}
	if partial.IsIntroOffer || partial.Explicit.Has(FieldIntroOffer) {
		s.IsIntroOffer = partial.IsIntroOffer
	}
	if partial.AutoRenewStatus != nil {
		v := *partial.AutoRenewStatus
		s.AutoRenewStatus = &v
	}
	if partial.Environment != "" {
		s.Environment = partial.Environment
	}
	if !partial.VerifiedAt.IsZero() {
		s.VerifiedAt = partial.VerifiedAt
	}
	s.Explicit = 0
	return s
}

// Source says where a snapshot came from.
type Source string

const (
	SourceClientVerification Source = "client_verification"
	SourceNotification       Source = "notification"
)

func (s Source) valid() bool {
	return s == SourceClientVerification || s == SourceNotification
}

// Notice carries the audit fields of a store notification.
type Notice struct {
	Type       string
	Subtype    string
	NotifiedAt time.Time
}

// Record is the single entitlement record of a user. It is never deleted.
type Record struct {
	UserID               string     `json:"userId"`
	Snapshot             Snapshot   `json:"snapshot"`
	LastNotificationType string     `json:"lastNotificationType,omitempty"`
	LastNotifiedAt       *time.Time `json:"lastNotifiedAt,omitempty"`
	LastValidatedAt      *time.Time `json:"lastValidatedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// IsActiveAt reports whether the record grants entitlement at now.
func (r *Record) IsActiveAt(now time.Time) bool {
	return r != nil && r.Snapshot.IsActiveAt(now)
}

// TransactionMapping routes an original transaction ID to its owner.
type TransactionMapping struct {
	OriginalTransactionID string
	UserID                string
	ProductID             string
	ExpiresTime           *time.Time
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Summary is the cached entitlement state kept on a mapping.
type Summary struct {
	ExpiresTime *time.Time
	Active      bool
}
