package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/models"
)

// ErrSubscriptionGone means the push endpoint no longer exists and the
// subscription record should be removed.
var ErrSubscriptionGone = errors.New("subscription gone")

// NotificationPayload is what subscribers receive for a new article.
type NotificationPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"target_url"`
	Image     string `json:"image,omitempty"`
}

// PushDelivery is the boundary to the push transport.
type PushDelivery interface {
	Send(ctx context.Context, sub *models.PushSubscription, payload NotificationPayload) error
}

// Notifier fans a new article out to matching push subscriptions. Delivery
// is best-effort: a dead subscription is pruned, any other failure is logged
// and not retried.
type Notifier struct {
	db       *gorm.DB
	delivery PushDelivery
	logger   *zap.Logger
}

func NewNotifier(db *gorm.DB, delivery PushDelivery, logger *zap.Logger) *Notifier {
	return &Notifier{
		db:       db,
		delivery: delivery,
		logger:   logger,
	}
}

// FanOut sends the article notification to every subscription matching its
// category. Breaking articles go to all subscribers regardless of filter.
func (n *Notifier) FanOut(ctx context.Context, article *models.Article) {
	subs, err := n.targets(ctx, article)
	if err != nil {
		n.logger.Error("Failed to load push subscriptions",
			zap.Uint("article_id", article.ID),
			zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := NotificationPayload{
		Title:     article.Title,
		Body:      snippet(article.Body, 140),
		TargetURL: "/articles/" + article.Slug,
		Image:     article.Image.URL,
	}

	delivered, pruned := 0, 0
	for i := range subs {
		err := n.delivery.Send(ctx, &subs[i], payload)
		if err == nil {
			delivered++
			continue
		}
		if errors.Is(err, ErrSubscriptionGone) {
			if delErr := n.db.WithContext(ctx).Delete(&models.PushSubscription{}, subs[i].ID).Error; delErr != nil {
				n.logger.Error("Failed to prune dead subscription",
					zap.Uint("subscription_id", subs[i].ID),
					zap.Error(delErr))
			} else {
				pruned++
			}
			continue
		}
		n.logger.Warn("Push delivery failed",
			zap.Uint("subscription_id", subs[i].ID),
			zap.Error(err))
	}

	n.logger.Info("Notification fan-out completed",
		zap.Uint("article_id", article.ID),
		zap.Int("targets", len(subs)),
		zap.Int("delivered", delivered),
		zap.Int("pruned", pruned))
}

func (n *Notifier) targets(ctx context.Context, article *models.Article) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	q := n.db.WithContext(ctx)
	if article.Type != models.TypeBreaking {
		q = q.Where("category = ? OR category = ''", article.Category)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// Subscribe registers a push endpoint, replacing an existing record for the
// same endpoint.
func (n *Notifier) Subscribe(ctx context.Context, sub *models.PushSubscription) error {
	var existing models.PushSubscription
	err := n.db.WithContext(ctx).Where("endpoint = ?", sub.Endpoint).First(&existing).Error
	if err == nil {
		sub.ID = existing.ID
		return n.db.WithContext(ctx).Save(sub).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return n.db.WithContext(ctx).Create(sub).Error
}

// snippet cuts s to at most max bytes without splitting a rune.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// HTTPPushDelivery posts the payload to each subscription's endpoint.
type HTTPPushDelivery struct {
	client *http.Client
}

func NewHTTPPushDelivery() *HTTPPushDelivery {
	return &HTTPPushDelivery{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPPushDelivery) Send(ctx context.Context, sub *models.PushSubscription, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sub.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// 404/410 from a push endpoint means the browser dropped the
	// subscription.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
