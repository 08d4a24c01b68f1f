package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/cache"
	"github.com/newshub/newsdesk/internal/metrics"
	"github.com/newshub/newsdesk/internal/models"
)

// user-agent fragments that identify automated clients
var botTokens = []string{"bot", "crawler", "spider"}

// ViewService increments article view counters with per-visitor
// deduplication.
type ViewService struct {
	db      *gorm.DB
	deduper *cache.ViewDeduper
	logger  *zap.Logger
}

func NewViewService(db *gorm.DB, deduper *cache.ViewDeduper, logger *zap.Logger) *ViewService {
	return &ViewService{
		db:      db,
		deduper: deduper,
		logger:  logger,
	}
}

// Visitor is the identity signal for deduplication: the authenticated user
// id when present, otherwise the originating network address.
type Visitor struct {
	UserID    uint
	RemoteIP  string
	UserAgent string
}

func (v Visitor) key(articleID uint) string {
	if v.UserID != 0 {
		return fmt.Sprintf("view:%d:u%d", articleID, v.UserID)
	}
	return fmt.Sprintf("view:%d:%s", articleID, v.RemoteIP)
}

// Bot reports whether the visitor looks like an automated client. Bots
// never increment counters and never touch the dedup cache.
func (v Visitor) Bot() bool {
	ua := strings.ToLower(v.UserAgent)
	for _, token := range botTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// Record counts one view for the article unless this visitor was already
// counted within the dedup window. Returns the current view count.
// Articles that are not live never accumulate views; editorial reads of
// drafts and pending submissions are not audience traffic.
func (s *ViewService) Record(ctx context.Context, article *models.Article, visitor Visitor) (uint64, error) {
	if !article.Published {
		metrics.ViewsSuppressedTotal.WithLabelValues("unpublished").Inc()
		return article.Views, nil
	}

	if visitor.Bot() {
		metrics.ViewsSuppressedTotal.WithLabelValues("bot").Inc()
		return article.Views, nil
	}

	if s.deduper.SeenRecently(ctx, visitor.key(article.ID)) {
		metrics.ViewsSuppressedTotal.WithLabelValues("dedup").Inc()
		return s.current(ctx, article.ID)
	}

	// Single-statement increment; no read-modify-write to race.
	err := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ?", article.ID).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
	if err != nil {
		return article.Views, fmt.Errorf("failed to increment views: %w", err)
	}

	metrics.ViewsRecordedTotal.Inc()
	return s.current(ctx, article.ID)
}

func (s *ViewService) current(ctx context.Context, id uint) (uint64, error) {
	var a models.Article
	err := s.db.WithContext(ctx).Select("views").First(&a, id).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read view count: %w", err)
	}
	return a.Views, nil
}
