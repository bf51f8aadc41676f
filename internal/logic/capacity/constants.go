package capacity

import "time"

const (
	// retryBackoffBase is the first retry delay after a provisioning attempt
	// times out; subsequent delays double up to retryBackoffMax.
	retryBackoffBase = 15 * time.Second
	retryBackoffMax  = 5 * time.Minute

	defaultRetryFactor = 2.0
	defaultMaxRetries  = 5
)
