package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateReturn OutboxAggregateType = "return"
	AggregatePayout OutboxAggregateType = "payout"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateReturn,
	AggregatePayout,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderShipped        OutboxEventType = "order_shipped"
	EventOrderDelivered      OutboxEventType = "order_delivered"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderExpired        OutboxEventType = "order_expired"
	EventReturnRequested     OutboxEventType = "return_requested"
	EventReturnVerified      OutboxEventType = "return_verified"
	EventPayoutIssued        OutboxEventType = "payout_issued"
	EventPayoutStatusUpdated OutboxEventType = "payout_status_updated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderCancelled,
	EventOrderExpired,
	EventReturnRequested,
	EventReturnVerified,
	EventPayoutIssued,
	EventPayoutStatusUpdated,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDeadLetterReason is attached as the error_reason attribute when an event
// is forwarded to the dead-letter topic.
type OutboxDeadLetterReason string

const (
	DeadLetterMaxAttempts  OutboxDeadLetterReason = "max_attempts"
	DeadLetterNonRetryable OutboxDeadLetterReason = "non_retryable"
	DeadLetterUnroutable   OutboxDeadLetterReason = "unroutable"
)

func (r OutboxDeadLetterReason) IsValid() bool {
	switch r {
	case DeadLetterMaxAttempts, DeadLetterNonRetryable, DeadLetterUnroutable:
		return true
	}
	return false
}
