package enums

import "fmt"

// ReturnReason maps to the return_reason_enum enum in Postgres.
type ReturnReason string

const (
	ReturnReasonChangedMind    ReturnReason = "CHANGED_MIND"
	ReturnReasonWrongSize      ReturnReason = "WRONG_SIZE"
	ReturnReasonFaultyProduct  ReturnReason = "FAULTY_PRODUCT"
	ReturnReasonDamagedProduct ReturnReason = "DAMAGED_PRODUCT"
	ReturnReasonOther          ReturnReason = "OTHER"
)

var validReturnReasons = []ReturnReason{
	ReturnReasonChangedMind,
	ReturnReasonWrongSize,
	ReturnReasonFaultyProduct,
	ReturnReasonDamagedProduct,
	ReturnReasonOther,
}

func (r ReturnReason) String() string {
	return string(r)
}

func (r ReturnReason) IsValid() bool {
	for _, candidate := range validReturnReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsFaultClaim reports whether the reason alleges a defect on the seller side.
func (r ReturnReason) IsFaultClaim() bool {
	return r == ReturnReasonFaultyProduct || r == ReturnReasonDamagedProduct
}

func ParseReturnReason(value string) (ReturnReason, error) {
	for _, candidate := range validReturnReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return reason %q", value)
}
