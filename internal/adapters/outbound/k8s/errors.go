package k8s

// NotFoundError represents a "not found" case that is not an error.
type NotFoundError struct{}

func (e *NotFoundError) Error() string {
	return "not found"
}

func (e *NotFoundError) IsNotFound() {}

var errNotFound = &NotFoundError{}

// TooManyRequestsError represents API server throttling; callers retry on
// the next tick.
type TooManyRequestsError struct{}

func (e *TooManyRequestsError) Error() string {
	return "too many requests"
}

func (e *TooManyRequestsError) IsTooManyRequests() {}

var errTooManyRequests = &TooManyRequestsError{}
