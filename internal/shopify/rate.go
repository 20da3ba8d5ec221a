package shopify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// maxWaitStep bounds each sleep inside Reserve so the controller stays
// responsive to budgets updated from server feedback between iterations.
const maxWaitStep = 100 * time.Millisecond

// ThrottleStatus is the authoritative server-side bucket snapshot carried in
// the extensions.cost block of every response.
type ThrottleStatus struct {
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
	MaximumAvailable   float64 `json:"maximumAvailable"`
}

// RateController tracks the remote API's cost-based quota as a leaky bucket:
// the budget refills continuously at leakRate points per second up to
// maxBucket, and is debited per call. The engine runs one pass at a time, so
// the controller keeps no internal locking; concurrent callers are not
// supported.
type RateController struct {
	available float64
	maxBucket float64
	leakRate  float64
	lastLeak  time.Time

	logger *logrus.Entry
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRateController creates a rate controller starting with a full bucket.
// A non-positive bucket size or leak rate is a configuration error.
func NewRateController(maxBucket, leakRate float64, logger *logrus.Logger) (*RateController, error) {
	if maxBucket <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid max bucket size: %f", maxBucket)}
	}
	if leakRate <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid leak rate: %f", leakRate)}
	}

	return &RateController{
		available: maxBucket,
		maxBucket: maxBucket,
		leakRate:  leakRate,
		lastLeak:  time.Now(),
		logger:    logger.WithField("component", "rate-controller"),
		now:       time.Now,
		sleep:     sleepContext,
	}, nil
}

// Reserve blocks until at least cost points are available, then debits them.
// A cost larger than the bucket can ever hold fails fast instead of looping
// forever.
func (rc *RateController) Reserve(ctx context.Context, cost float64) error {
	if cost > rc.maxBucket {
		return &ConfigurationError{
			Reason: fmt.Sprintf("query cost %.0f exceeds maximum bucket size %.0f", cost, rc.maxBucket),
		}
	}

	for {
		rc.leak()

		if rc.available >= cost {
			rc.available -= cost
			return nil
		}

		shortfall := cost - rc.available
		wait := time.Duration(shortfall / rc.leakRate * float64(time.Second))
		if wait > maxWaitStep {
			wait = maxWaitStep
		}

		rc.logger.WithFields(logrus.Fields{
			"cost":      cost,
			"available": rc.available,
			"wait":      wait.String(),
		}).Debug("Waiting for rate budget")

		if err := rc.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordServerFeedback overwrites the local bucket estimate with the server's
// authoritative snapshot. A zero snapshot (response without a cost block) is
// ignored.
func (rc *RateController) RecordServerFeedback(status ThrottleStatus) {
	if status.MaximumAvailable <= 0 || status.RestoreRate <= 0 {
		return
	}

	rc.available = status.CurrentlyAvailable
	rc.maxBucket = status.MaximumAvailable
	rc.leakRate = status.RestoreRate
	rc.lastLeak = rc.now()
}

// Available returns the current budget estimate after a leak step.
func (rc *RateController) Available() float64 {
	rc.leak()
	return rc.available
}

// leak refills the bucket for the elapsed time since the last step, capped at
// the bucket size.
func (rc *RateController) leak() {
	now := rc.now()
	elapsed := now.Sub(rc.lastLeak).Seconds()
	if elapsed > 0 {
		rc.available += elapsed * rc.leakRate
		if rc.available > rc.maxBucket {
			rc.available = rc.maxBucket
		}
	}
	if rc.available < 0 {
		rc.available = 0
	}
	rc.lastLeak = now
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
