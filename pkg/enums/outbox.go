package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateVoucher OutboxAggregateType = "voucher"
)

// OutboxEventType names a domain event emitted through the outbox.
type OutboxEventType string

const (
	EventOrderPaid       OutboxEventType = "order_paid"
	EventVoucherRedeemed OutboxEventType = "voucher_redeemed"
	EventVouchersExpired OutboxEventType = "vouchers_expired"
)

// OutboxDLQErrorReason records why a row was parked instead of retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var (
	aggregateTypes  = []OutboxAggregateType{AggregateOrder, AggregateVoucher}
	eventTypes      = []OutboxEventType{EventOrderPaid, EventVoucherRedeemed, EventVouchersExpired}
	deadLetterCause = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}
)

func (a OutboxAggregateType) IsValid() bool {
	_, err := ParseOutboxAggregateType(string(a))
	return err == nil
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

func (e OutboxEventType) IsValid() bool {
	_, err := ParseOutboxEventType(string(e))
	return err == nil
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, err := parse("dead letter reason", string(r), deadLetterCause)
	return err == nil
}
