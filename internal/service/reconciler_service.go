package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/formation-api/internal/models"
)

type reconcilerRepository interface {
	ListByStatuses(ctx context.Context, statuses []models.FormationStatus) ([]models.Formation, error)
	UpdateStatus(ctx context.Context, id string, status models.FormationStatus) error
}

// ReconcileResult summarises one reconciliation invocation.
type ReconcileResult struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Started   int `json:"started"`
	Failed    int `json:"failed"`
}

// ReconcilerService advances formation statuses based on the wall-clock date.
// Only scheduled and in-progress formations are candidates; draft and the
// terminal states are never touched. Running it twice on the same date with
// no intervening changes produces no further transitions.
type ReconcilerService struct {
	repo    reconcilerRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconcilerService constructs ReconcilerService.
func NewReconcilerService(repo reconcilerRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ReconcilerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcilerService{repo: repo, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Run executes one reconciliation pass. Failures are isolated per record: a
// failed status write is logged and counted, the remaining candidates are
// still evaluated.
func (s *ReconcilerService) Run(ctx context.Context) (ReconcileResult, error) {
	start := s.now()
	today := truncateToDay(start.UTC())

	candidates, err := s.repo.ListByStatuses(ctx, []models.FormationStatus{
		models.FormationStatusScheduled,
		models.FormationStatusInProgress,
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	var result ReconcileResult
	for _, formation := range candidates {
		result.Processed++

		target, ok := s.evaluate(formation, today)
		if !ok {
			continue
		}

		if err := s.repo.UpdateStatus(ctx, formation.ID, target); err != nil {
			result.Failed++
			if s.metrics != nil {
				s.metrics.RecordReconcileFailure()
			}
			s.logger.Warn("reconciler status write failed",
				zap.String("formation_id", formation.ID),
				zap.String("target", string(target)),
				zap.Error(err))
			continue
		}

		switch target {
		case models.FormationStatusCompleted:
			result.Completed++
		case models.FormationStatusInProgress:
			result.Started++
		}
		if s.metrics != nil {
			s.metrics.RecordReconcileTransition(string(target))
		}
		s.logger.Info("reconciler advanced formation",
			zap.String("formation_id", formation.ID),
			zap.String("from", string(formation.Status)),
			zap.String("to", string(target)))
	}

	if result.Completed > 0 || result.Started > 0 {
		s.cache.Invalidate(ctx, "formations:*")
	}
	if s.metrics != nil {
		s.metrics.RecordReconcileRun(time.Since(start))
	}

	s.logger.Info("reconciliation run finished",
		zap.Int("processed", result.Processed),
		zap.Int("completed", result.Completed),
		zap.Int("started", result.Started),
		zap.Int("failed", result.Failed))

	return result, nil
}

// evaluate applies the advancement rules in precedence order: a past end date
// completes the formation regardless of which candidate status it is in;
// otherwise a scheduled formation whose start date has arrived begins.
func (s *ReconcilerService) evaluate(formation models.Formation, today time.Time) (models.FormationStatus, bool) {
	if formation.EndDate != nil && truncateToDay(formation.EndDate.UTC()).Before(today) {
		return models.FormationStatusCompleted, true
	}
	if formation.Status == models.FormationStatusScheduled &&
		!formation.StartDate.IsZero() &&
		!truncateToDay(formation.StartDate.UTC()).After(today) {
		return models.FormationStatusInProgress, true
	}
	return "", false
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
