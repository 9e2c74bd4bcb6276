package importer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
)

// retryMetrics holds the OTel instruments for the throttle-retry path,
// mirroring the teacher's doltMetrics.retryCount
// (internal/storage/dolt/store.go) applied to this engine's THROTTLED
// condition instead of a dolt server-mode transient error.
var retryMetrics struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/dataplane-tools/xrm-migrate/importer")
	retryMetrics.retryCount, _ = m.Int64Counter("xrm.importer.throttle_retry_count",
		metric.WithDescription("pool operations retried due to THROTTLED responses"),
		metric.WithUnit("{retry}"),
	)
}

// withThrottleRetry runs op, retrying with exponential backoff when op
// returns a *pool.ThrottledError, up to maxRetries retries after the
// first attempt. Any other
// error is permanent and returned immediately, mirroring the teacher's
// withRetry/backoff.Permanent pattern in internal/storage/dolt. Every
// retry beyond the first attempt is recorded against retryCount, the
// same "count attempts, report attempts-1" shape as withRetry.
func withThrottleRetry(ctx context.Context, maxRetries int, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bounded := backoff.WithMaxRetries(bo, uint64(maxRetries))

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		var te *pool.ThrottledError
		if errors.As(err, &te) {
			return err // retryable, backoff will retry
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bounded, ctx))
	if attempts > 1 {
		retryMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}
