// Package maintenance runs the scheduled refresh of stored records so they
// track changes in how entries are converted.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/jacentio/codex/store"
)

// Refresher is the part of *store.Reconciler the handler drives.
type Refresher interface {
	Refresh(ctx context.Context, typ string, deadline store.Deadline) (store.RefreshResult, error)
}

// Handler runs Refresh for a fixed list of types on a schedule.
type Handler struct {
	refresher Refresher
	types     []string
	margin    time.Duration
	logger    *slog.Logger
}

// NewHandler creates a handler refreshing types in order. margin is kept
// free before the invocation deadline.
func NewHandler(r Refresher, types []string, margin time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		refresher: r,
		types:     append([]string(nil), types...),
		margin:    margin,
		logger:    logger,
	}
}

// Report summarizes one scheduled run.
type Report struct {
	Results map[string]store.RefreshResult
	Stopped bool
}

// Run refreshes each configured type until one stops on the deadline or
// fails. Types after a stopped one are left for the next run.
func (h *Handler) Run(ctx context.Context) (Report, error) {
	return h.run(ctx, h.logger)
}

func (h *Handler) run(ctx context.Context, logger *slog.Logger) (Report, error) {
	report := Report{Results: make(map[string]store.RefreshResult, len(h.types))}
	deadline := store.ContextDeadline(ctx, h.margin)

	for _, typ := range h.types {
		if deadline.TimeRunningOut() {
			report.Stopped = true
			break
		}
		res, err := h.refresher.Refresh(ctx, typ, deadline)
		report.Results[typ] = res
		if err != nil {
			return report, fmt.Errorf("refresh %s: %w", typ, err)
		}
		if res.Stopped {
			report.Stopped = true
			break
		}
	}

	logger.Info("scheduled refresh finished",
		"types", len(report.Results),
		"stopped", report.Stopped,
	)
	return report, nil
}

// HandleScheduled is the AWS Lambda entry point for EventBridge schedules.
func (h *Handler) HandleScheduled(ctx context.Context, event events.CloudWatchEvent) (Report, error) {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("requestID", lc.AwsRequestID)
	}
	logger.Debug("scheduled event received", "id", event.ID, "time", event.Time)
	return h.run(ctx, logger)
}
