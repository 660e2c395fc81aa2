package utils

import "errors"

// Stable error taxonomy for the collections core. Handlers map these to HTTP
// status codes and stable string codes; workers use them to decide whether a
// failure aborts the batch or only the current item.
var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorForbidden signals an ownership mismatch between the caller's
	// business and the requested invoice.
	ErrorForbidden = errors.New("forbidden")

	// ErrorInvalidRequest signals malformed input (bad stage, bad parameters).
	ErrorInvalidRequest = errors.New("invalid request")

	// ErrorDeliveryFailed marks a per-invoice notification failure during a
	// sweep. The item is logged and skipped; the batch continues.
	ErrorDeliveryFailed = errors.New("delivery failed")
)
