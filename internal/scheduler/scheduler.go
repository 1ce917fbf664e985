package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pharmapos/m/domain"
)

const checkTimeout = time.Minute

// StockReporter supplies the medicines the stock alert job reports on.
type StockReporter interface {
	LowStockMedicines(ctx context.Context) ([]domain.Medicine, error)
	ExpiringMedicines(ctx context.Context, days int) ([]domain.Medicine, error)
}

// Scheduler runs the periodic stock alert job.
type Scheduler struct {
	cron       *cron.Cron
	reporter   StockReporter
	schedule   string
	expiryDays int
	logger     *zap.Logger
}

// NewScheduler creates a scheduler. schedule is a standard five field cron expression.
func NewScheduler(reporter StockReporter, schedule string, expiryDays int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		reporter:   reporter,
		schedule:   schedule,
		expiryDays: expiryDays,
		logger:     logger,
	}
}

// Start registers the stock alert job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runStockCheck); err != nil {
		return fmt.Errorf("schedule stock alerts %q: %w", s.schedule, err)
	}
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runStockCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	s.CheckStock(ctx)
}

// CheckStock logs one warning per low-stock medicine and per medicine expiring
// within the configured window.
func (s *Scheduler) CheckStock(ctx context.Context) {
	low, err := s.reporter.LowStockMedicines(ctx)
	if err != nil {
		s.logger.Error("failed to load low stock medicines", zap.Error(err))
	} else {
		for _, m := range low {
			s.logger.Warn("medicine below reorder threshold",
				zap.String("medicine_id", m.ID),
				zap.String("name", m.Name),
				zap.Int("stock", m.Stock),
				zap.Int("reorder_threshold", m.ReorderThreshold))
		}
	}

	expiring, err := s.reporter.ExpiringMedicines(ctx, s.expiryDays)
	if err != nil {
		s.logger.Error("failed to load expiring medicines", zap.Error(err))
		return
	}
	for _, m := range expiring {
		s.logger.Warn("medicine expiring soon",
			zap.String("medicine_id", m.ID),
			zap.String("name", m.Name),
			zap.Time("expiry_date", *m.ExpiryDate))
	}

	s.logger.Info("stock check finished", zap.Int("low_stock", len(low)), zap.Int("expiring", len(expiring)))
}
