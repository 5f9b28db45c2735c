package discovery

import (
	"context"

	"go.uber.org/zap"

	"cds-client/shared"
)

// FeedbackReporter sends fire-and-forget diagnostics about discovery
// outcomes. These are not part of the trust protocol: each call's own
// transport failure is logged and swallowed, never propagated, never
// retried.
type FeedbackReporter struct {
	service FeedbackService
	logger  *shared.Logger
}

// NewFeedbackReporter creates a reporter over the given feedback channel
func NewFeedbackReporter(service FeedbackService, logger *shared.Logger) *FeedbackReporter {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &FeedbackReporter{service: service, logger: logger}
}

// ReportMatch signals that the discovery result matched the caller's
// expectation
func (r *FeedbackReporter) ReportMatch(ctx context.Context) {
	r.report(ctx, FeedbackMatch, "")
}

// ReportMismatch signals that the discovery result did not match the
// caller's expectation
func (r *FeedbackReporter) ReportMismatch(ctx context.Context) {
	r.report(ctx, FeedbackMismatch, "")
}

// ReportAttestationError signals a failed attestation verification
func (r *FeedbackReporter) ReportAttestationError(ctx context.Context, reason string) {
	r.report(ctx, FeedbackAttestationError, reason)
}

// ReportUnexpectedError signals a post-attestation protocol failure
func (r *FeedbackReporter) ReportUnexpectedError(ctx context.Context, reason string) {
	r.report(ctx, FeedbackUnexpectedError, reason)
}

func (r *FeedbackReporter) report(ctx context.Context, status FeedbackStatus, reason string) {
	if err := r.service.SendFeedback(ctx, status, reason); err != nil {
		r.logger.Warn("feedback call failed, ignoring",
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
