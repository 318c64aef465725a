package enums

// FailureStage records how far materialization got before failing.
type FailureStage string

const (
	// FailureStageOrder means no order exists yet; retry runs the full materializer.
	FailureStageOrder FailureStage = "order"
	// FailureStageLines means the order exists but some lines were not applied.
	FailureStageLines FailureStage = "lines"
)

func (s FailureStage) IsValid() bool {
	return s == FailureStageOrder || s == FailureStageLines
}

// LineFailureReason explains why a cart line produced no vouchers.
type LineFailureReason string

const (
	LineReasonServiceNotFound      LineFailureReason = "service_not_found"
	LineReasonCatalogueUnavailable LineFailureReason = "catalogue_unavailable"
	LineReasonPersistFailed        LineFailureReason = "persist_failed"
	LineReasonInvalidLine          LineFailureReason = "invalid_line"
)

// Retryable reports whether a later attempt could succeed.
func (r LineFailureReason) Retryable() bool {
	return r == LineReasonCatalogueUnavailable || r == LineReasonPersistFailed
}
