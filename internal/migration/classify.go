package migration

import (
	"context"
	"errors"

	"github.com/dataplane-tools/xrm-migrate/internal/pool"
	"github.com/dataplane-tools/xrm-migrate/internal/report"
)

// Classify maps a top-level Export/Import error to its §7 session-
// scoped category, for the caller's final structured summary (§7
// "User-visible behavior"). Per-record and per-entity categories are
// already resolved inside internal/importer and live in the
// ErrorReport itself; Classify only distinguishes the handful of
// conditions that abort an entire run. The markers it matches are the
// pool contract's own (*pool.AuthError, *pool.NetworkError), since
// that is what any pool.Client implementation surfaces.
func Classify(err error) report.Category {
	if err == nil {
		return ""
	}
	var ae *pool.AuthError
	if errors.As(err, &ae) {
		return report.CategoryAuthFailure
	}
	var ne *pool.NetworkError
	if errors.As(err, &ne) {
		return report.CategoryNetworkFailure
	}
	if errors.Is(err, context.Canceled) {
		return report.CategoryCancelled
	}
	return report.CategoryUnknown
}
