package lens

import "fmt"

// ValidationError reports malformed input, rejected before any computation
// is scheduled.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AggregationError reports a shape mismatch between the indices a request
// asked for and the values the backend returned. It signals a contract
// violation, not a user mistake, and is never silently recovered.
type AggregationError struct {
	Msg string
}

func (e *AggregationError) Error() string {
	return "aggregation mismatch: " + e.Msg
}

func aggregationf(format string, args ...any) *AggregationError {
	return &AggregationError{Msg: fmt.Sprintf(format, args...)}
}
