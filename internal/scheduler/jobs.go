/**
 * @description
 * Scheduled job implementations for the assistant service.
 *
 * @notes
 * - Pending proposals never expire. The stale sweep only reports them so an
 *   operator or notification consumer can follow up.
 */
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/transfa/assistant-service/internal/domain"
)

// Repository defines database operations needed by the jobs.
type Repository interface {
	ListStaleProposals(ctx context.Context, olderThan time.Time, limit int) ([]domain.TransferProposal, error)
}

// EventPublisher receives one event per stale proposal.
type EventPublisher interface {
	PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error
}

// Options configures the jobs.
type Options struct {
	StaleSchedule string
	StaleAfter    time.Duration
	BatchLimit    int
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo   Repository
	events EventPublisher
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo Repository, events EventPublisher, logger *slog.Logger, opts Options) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		repo:   repo,
		events: events,
		logger: logger.With("component", "scheduler"),
		opts:   opts,
		now:    time.Now,
	}
}

// ReportStaleProposals finds proposals pending longer than StaleAfter and
// publishes a stale event for each. It returns how many were reported.
func (j *Jobs) ReportStaleProposals(ctx context.Context) int {
	j.logger.Info("starting stale proposal job")

	cutoff := j.now().UTC().Add(-j.opts.StaleAfter)
	proposals, err := j.repo.ListStaleProposals(ctx, cutoff, j.opts.BatchLimit)
	if err != nil {
		j.logger.Error("failed to list stale proposals", "error", err)
		return 0
	}

	if len(proposals) == 0 {
		j.logger.Info("no stale proposals to report")
		return 0
	}

	j.logger.Info("found stale proposals", "count", len(proposals), "older_than", cutoff)

	reported := 0
	for _, p := range proposals {
		event := domain.TransferEvent{
			ProposalID: p.ID,
			UserID:     p.UserID,
			Status:     p.Status,
			Amount:     p.Amount.StringFixed(2),
			Currency:   p.Currency,
			Reason:     "pending since " + p.CreatedAt.UTC().Format(time.RFC3339),
			OccurredAt: j.now().UTC(),
		}
		if err := j.events.PublishTransferEvent(ctx, domain.RoutingKeyProposalStale, event); err != nil {
			j.logger.Error("failed to publish stale proposal", "proposal_id", p.ID, "error", err)
			continue
		}
		reported++
	}

	j.logger.Info("stale proposal job finished", "reported", reported)
	return reported
}
