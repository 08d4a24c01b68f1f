package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/config"
	"github.com/newshub/newsdesk/internal/metrics"
	"github.com/newshub/newsdesk/internal/models"
)

// ScheduledPublisher promotes due scheduled articles to published on a fixed
// cadence. A single recurring sweep replaces a timer per article; editorial
// volume keeps the batch small.
type ScheduledPublisher struct {
	config *config.SchedulerConfig
	db     *gorm.DB
	logger *zap.Logger
	ticker *time.Ticker
	stopCh chan struct{}
}

func NewScheduledPublisher(cfg *config.SchedulerConfig, db *gorm.DB, logger *zap.Logger) *ScheduledPublisher {
	return &ScheduledPublisher{
		config: cfg,
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

func (p *ScheduledPublisher) Start(ctx context.Context) error {
	if p.config.Disabled() {
		p.logger.Info("Scheduled publisher is disabled")
		return nil
	}

	interval, err := time.ParseDuration(p.config.SweepInterval)
	if err != nil {
		p.logger.Error("Invalid sweep interval", zap.String("interval", p.config.SweepInterval), zap.Error(err))
		return err
	}

	p.logger.Info("Starting scheduled publisher", zap.String("sweep_interval", p.config.SweepInterval))

	p.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.runSweep(ctx)
			case <-p.stopCh:
				p.logger.Info("Scheduled publisher stopped")
				return
			case <-ctx.Done():
				p.logger.Info("Scheduled publisher context cancelled")
				return
			}
		}
	}()

	return nil
}

func (p *ScheduledPublisher) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stopCh)
	p.logger.Info("Scheduled publisher shutdown completed")
}

// runSweep is one cycle: find every scheduled article whose publish time has
// arrived and flip it live. Errors are contained to the cycle; a failing
// article is logged and the rest of the batch still runs.
func (p *ScheduledPublisher) runSweep(ctx context.Context) {
	start := time.Now()

	due, err := p.Due(ctx, start)
	if err != nil {
		p.logger.Error("Sweep query failed", zap.Error(err))
		metrics.ScheduledSweepErrors.Inc()
		return
	}
	if len(due) == 0 {
		return
	}

	published := 0
	for i := range due {
		if err := p.publish(ctx, &due[i]); err != nil {
			p.logger.Error("Failed to publish scheduled article",
				zap.Uint("article_id", due[i].ID),
				zap.Error(err))
			metrics.ScheduledSweepErrors.Inc()
			continue
		}
		published++
		metrics.ScheduledPublishedTotal.Inc()
	}

	p.logger.Info("Sweep completed",
		zap.Int("due", len(due)),
		zap.Int("published", published),
		zap.Duration("duration", time.Since(start)))
}

// Due returns the scheduled articles whose publish time is at or before now.
func (p *ScheduledPublisher) Due(ctx context.Context, now time.Time) ([]models.Article, error) {
	var due []models.Article
	err := p.db.WithContext(ctx).
		Where("status = ? AND published_at <= ? AND is_deleted = ?", models.StatusScheduled, now, false).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

func (p *ScheduledPublisher) publish(ctx context.Context, article *models.Article) error {
	res := p.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND status = ?", article.ID, models.StatusScheduled).
		Updates(map[string]any{
			"status":    models.StatusApproved,
			"published": true,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		p.logger.Info("Scheduled article published",
			zap.Uint("article_id", article.ID),
			zap.String("slug", article.Slug))
	}
	return nil
}

// RunOnce performs a single sweep immediately, outside the ticker.
func (p *ScheduledPublisher) RunOnce(ctx context.Context) {
	p.runSweep(ctx)
}
