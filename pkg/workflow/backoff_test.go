package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trmhq/flowline/pkg/models"
)

func TestBackoffInterval(t *testing.T) {
	fixed := models.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 10, Strategy: models.BackoffFixed}
	assert.Equal(t, 10*time.Second, backoffInterval(fixed, 1))
	assert.Equal(t, 10*time.Second, backoffInterval(fixed, 3))

	exponential := models.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 10, Strategy: models.BackoffExponential}
	assert.Equal(t, 10*time.Second, backoffInterval(exponential, 1))
	assert.Equal(t, 30*time.Second, backoffInterval(exponential, 3))
	assert.Equal(t, 10*time.Second, backoffInterval(exponential, 0))
}
