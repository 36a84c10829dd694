package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/metrics"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReconcileService replays ledger writes for cards that are on chain but
// were never recorded.
type ReconcileService struct {
	queue   repository.ReconciliationQueue
	ledger  Ledger
	metrics *metrics.Metrics
	logger  *zap.Logger
	cron    *cron.Cron
}

func NewReconcileService(queue repository.ReconciliationQueue, ledger Ledger, m *metrics.Metrics, logger *zap.Logger) *ReconcileService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ReconcileService{
		queue:   queue,
		ledger:  ledger,
		metrics: m,
		logger:  logger.Named("reconcile"),
	}
}

func (s *ReconcileService) Enqueue(ctx context.Context, item *domain.ReconciliationItem) error {
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return err
	}
	s.metrics.ReconciliationQueued.Inc()
	return nil
}

func (s *ReconcileService) Pending(ctx context.Context) ([]*domain.ReconciliationItem, error) {
	items, err := s.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.ReconciliationItem{}
	}
	return items, nil
}

type ReplayReport struct {
	Resolved  int `json:"resolved"`
	Remaining int `json:"remaining"`
}

// ReplayOnce retries every queued item. A token that is already recorded
// counts as resolved; the wallet append is idempotent.
func (s *ReconcileService) ReplayOnce(ctx context.Context) (ReplayReport, error) {
	items, err := s.queue.List(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("list reconciliation queue: %w", err)
	}
	if len(items) == 0 {
		s.metrics.ReconciliationQueued.Set(0)
		return ReplayReport{}, nil
	}

	var resolved []string
	var retried []*domain.ReconciliationItem
	for _, item := range items {
		if err := s.replay(ctx, item); err != nil {
			item.Attempts++
			item.LastError = err.Error()
			item.UpdatedAt = time.Now()
			retried = append(retried, item)
			s.logger.Warn("replay failed",
				zap.String("item_id", item.ID),
				zap.Uint64("token_id", item.Card.TokenID),
				zap.Int("attempts", item.Attempts),
				zap.Error(err))
			continue
		}
		resolved = append(resolved, item.ID)
		s.logger.Info("replayed",
			zap.String("item_id", item.ID),
			zap.Uint64("token_id", item.Card.TokenID),
			zap.String("wallet", item.Recipient))
	}

	if err := s.queue.Update(ctx, resolved, retried); err != nil {
		return ReplayReport{}, fmt.Errorf("update reconciliation queue: %w", err)
	}

	report := ReplayReport{Resolved: len(resolved), Remaining: len(retried)}
	s.metrics.ReconciliationQueued.Set(float64(report.Remaining))
	return report, nil
}

func (s *ReconcileService) replay(ctx context.Context, item *domain.ReconciliationItem) error {
	card := item.MintedCard()
	if err := s.ledger.RecordMint(ctx, card); err != nil && !errors.Is(err, domain.ErrDuplicateRecord) {
		return err
	}
	return s.ledger.AppendOwnedToken(ctx, card.Recipient, card.TokenID)
}

// Start runs ReplayOnce on schedule until Stop.
func (s *ReconcileService) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		report, err := s.ReplayOnce(ctx)
		if err != nil {
			s.logger.Error("scheduled replay failed", zap.Error(err))
			return
		}
		if report.Resolved > 0 || report.Remaining > 0 {
			s.logger.Info("scheduled replay", zap.Int("resolved", report.Resolved), zap.Int("remaining", report.Remaining))
		}
	})
	if err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("reconciliation scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for a running replay to finish.
func (s *ReconcileService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
