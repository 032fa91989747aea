package workflow

import (
	"time"

	"github.com/trmhq/flowline/pkg/models"
)

// backoffInterval computes the wait after the given failed attempt.
// Fixed strategy waits the configured interval every time; exponential
// scales it with the attempt counter (interval * attempt).
func backoffInterval(policy models.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.BackoffSeconds) * time.Second

	if attempt < 1 {
		attempt = 1
	}

	if policy.Strategy == models.BackoffExponential {
		return base * time.Duration(attempt)
	}

	return base
}
