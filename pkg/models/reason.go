package models

// StateReasonKind enumerates the closed set of reasons a listing can be moved
// out of (or kept in) its current lifecycle state. Free-form diagnostic maps
// are deliberately not supported.
type StateReasonKind string

const (
	ReasonListingMissing   StateReasonKind = "LISTING_MISSING"
	ReasonUnparsablePage   StateReasonKind = "UNPARSABLE_PAGE"
	ReasonNameMismatch     StateReasonKind = "NAME_MISMATCH"
	ReasonAgedOut          StateReasonKind = "AGED_OUT"
	ReasonEndedWithoutSale StateReasonKind = "ENDED_WITHOUT_SALE"
	ReasonEndedWithSale    StateReasonKind = "ENDED_WITH_SALE"
	ReasonFetchFailed      StateReasonKind = "FETCH_FAILED"
)

// StateReason records why a listing is in its current state
type StateReason struct {
	Kind   StateReasonKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
}

// NewReason builds a StateReason
func NewReason(kind StateReasonKind, detail string) *StateReason {
	return &StateReason{Kind: kind, Detail: detail}
}
