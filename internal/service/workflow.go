package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/metrics"
	"github.com/newshub/newsdesk/internal/models"
	"github.com/newshub/newsdesk/pkg/util"
)

// workflow actions gated by the role capability table
type action string

const (
	actionApprove    action = "approve"
	actionReject     action = "reject"
	actionHardDelete action = "hard_delete"
)

// capabilities maps each role to the moderation actions it may perform.
// Checked once at the workflow boundary instead of per-handler role strings.
var capabilities = map[models.Role]map[action]bool{
	models.RoleAdmin: {
		actionApprove:    true,
		actionReject:     true,
		actionHardDelete: true,
	},
	models.RoleEditor: {
		actionApprove: true,
		actionReject:  true,
	},
	models.RoleReporter:    {},
	models.RoleContributor: {},
}

// WorkflowService owns every article state transition.
type WorkflowService struct {
	db       *gorm.DB
	media    MediaHost
	notifier *Notifier
	logger   *zap.Logger
}

func NewWorkflowService(db *gorm.DB, media MediaHost, notifier *Notifier, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{
		db:       db,
		media:    media,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *WorkflowService) allowed(role models.Role, a action) bool {
	return capabilities[role][a]
}

// CreateInput is the payload for a new article.
type CreateInput struct {
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Type        string             `json:"type"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Tags        []string           `json:"tags"`
	Image       *models.Attachment `json:"image"`
	Video       *models.Attachment `json:"video"`
	Draft       bool               `json:"draft"`
	PublishDate *time.Time         `json:"publish_date"`
}

func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.Type, validation.In(models.TypeStandard, models.TypeBreaking)),
	)
}

// Create inserts a new article. The acting author's role decides the entry
// state: privileged roles publish immediately, a future publish date queues
// the article for the scheduled publisher, an explicit draft stays private,
// and everything else waits for review.
func (s *WorkflowService) Create(ctx context.Context, in CreateInput, authorID uint, role models.Role) (*models.Article, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	article := &models.Article{
		Title:       in.Title,
		Body:        in.Body,
		Type:        in.Type,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Tags:        in.Tags,
		AuthorID:    authorID,
	}
	if in.Image != nil {
		article.Image = *in.Image
	}
	if in.Video != nil {
		article.Video = *in.Video
	}
	if article.Type == "" {
		article.Type = models.TypeStandard
	}

	switch {
	case role.Privileged():
		article.Status = models.StatusApproved
		article.Published = true
		article.PublishedAt = &now
	case in.Draft:
		article.Status = models.StatusDraft
	case in.PublishDate != nil && in.PublishDate.After(now):
		article.Status = models.StatusScheduled
		article.PublishedAt = in.PublishDate
	default:
		article.Status = models.StatusPending
	}

	slug, err := s.uniqueSlug(ctx, in.Title)
	if err != nil {
		return nil, err
	}
	article.Slug = slug
	article.Version = 1

	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		metrics.WorkflowTransitionsTotal.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	s.logger.Info("Article created",
		zap.Uint("article_id", article.ID),
		zap.String("slug", article.Slug),
		zap.String("status", string(article.Status)),
		zap.String("role", string(role)))
	metrics.WorkflowTransitionsTotal.WithLabelValues("create", string(article.Status)).Inc()

	// Notification delivery is best-effort and never blocks or fails the
	// create that triggered it. Only articles that went live fan out;
	// drafts and queued submissions stay private.
	if s.notifier != nil && article.Published {
		go s.notifier.FanOut(context.Background(), article)
	}

	return article, nil
}

// UpdateInput carries a partial content edit. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string            `json:"title"`
	Body        *string            `json:"body"`
	Category    *string            `json:"category"`
	Subcategory *string            `json:"subcategory"`
	Tags        []string           `json:"tags"`
	Image       *models.Attachment `json:"image"`
	Video       *models.Attachment `json:"video"`
	// Version is the optimistic concurrency token the client read. A stale
	// token fails with ErrConflict instead of silently overwriting.
	Version uint `json:"version"`
}

// Update edits article content. Status is never changed here. A changed
// title regenerates the slug; a replaced attachment releases the previous
// file at the media host exactly once; an actor other than the original
// author is recorded as the article's editor.
func (s *WorkflowService) Update(ctx context.Context, id string, in UpdateInput, actorID uint) (*models.Article, error) {
	article, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Version != 0 && in.Version != article.Version {
		return nil, fmt.Errorf("%w: article version changed, re-read and retry", ErrConflict)
	}

	updates := map[string]any{}

	if in.Title != nil && *in.Title != article.Title {
		if err := validation.Validate(*in.Title, validation.Required); err != nil {
			return nil, validation.Errors{"title": err}
		}
		slug, err := s.uniqueSlug(ctx, *in.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = *in.Title
		updates["slug"] = slug
	}
	if in.Body != nil {
		updates["body"] = *in.Body
	}
	if in.Category != nil {
		updates["category"] = *in.Category
	}
	if in.Subcategory != nil {
		updates["subcategory"] = *in.Subcategory
	}
	if in.Tags != nil {
		updates["tags"] = models.StringArray(in.Tags)
	}

	if in.Image != nil {
		s.releaseAttachment(ctx, article.Image)
		updates["image_url"] = in.Image.URL
		updates["image_external_id"] = in.Image.ExternalID
		updates["image_variants"] = in.Image.Variants
	}
	if in.Video != nil {
		s.releaseAttachment(ctx, article.Video)
		updates["video_url"] = in.Video.URL
		updates["video_external_id"] = in.Video.ExternalID
		updates["video_variants"] = in.Video.Variants
	}

	if actorID != 0 && actorID != article.AuthorID {
		updates["editor_id"] = actorID
	}

	if err := s.guardedUpdate(ctx, article, updates); err != nil {
		metrics.WorkflowTransitionsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	metrics.WorkflowTransitionsTotal.WithLabelValues("update", "ok").Inc()
	return s.getActive(ctx, id)
}

// Approve moves a pending or rejected article to approved. It deliberately
// does not touch published_at; the create path is the only place that sets
// an immediate publish time.
func (s *WorkflowService) Approve(ctx context.Context, id string, role models.Role) (*models.Article, error) {
	if !s.allowed(role, actionApprove) {
		return nil, ErrForbidden
	}

	article, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != models.StatusPending && article.Status != models.StatusRejected {
		return nil, fmt.Errorf("%w: cannot approve article in status %s", ErrConflict, article.Status)
	}

	updates := map[string]any{
		"status":    models.StatusApproved,
		"published": true,
	}
	if err := s.guardedUpdate(ctx, article, updates); err != nil {
		metrics.WorkflowTransitionsTotal.WithLabelValues("approve", "error").Inc()
		return nil, err
	}

	s.logger.Info("Article approved", zap.Uint("article_id", article.ID))
	metrics.WorkflowTransitionsTotal.WithLabelValues("approve", "ok").Inc()
	return s.getActive(ctx, id)
}

// Reject moves a pending article to rejected.
func (s *WorkflowService) Reject(ctx context.Context, id string, role models.Role) (*models.Article, error) {
	if !s.allowed(role, actionReject) {
		return nil, ErrForbidden
	}

	article, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot reject article in status %s", ErrConflict, article.Status)
	}

	if err := s.guardedUpdate(ctx, article, map[string]any{"status": models.StatusRejected}); err != nil {
		metrics.WorkflowTransitionsTotal.WithLabelValues("reject", "error").Inc()
		return nil, err
	}

	s.logger.Info("Article rejected", zap.Uint("article_id", article.ID))
	metrics.WorkflowTransitionsTotal.WithLabelValues("reject", "ok").Inc()
	return s.getActive(ctx, id)
}

// SoftDelete moves an article to the recycle bin. Its workflow status is
// kept so restore can resume it.
func (s *WorkflowService) SoftDelete(ctx context.Context, id string) error {
	article, err := s.getAny(ctx, id)
	if err != nil {
		return err
	}
	if article.IsDeleted {
		return ErrAlreadyDeleted
	}

	now := time.Now()
	updates := map[string]any{
		"is_deleted": true,
		"deleted_at": now,
	}
	if err := s.guardedUpdate(ctx, article, updates); err != nil {
		return err
	}

	s.logger.Info("Article moved to recycle bin", zap.Uint("article_id", article.ID))
	metrics.WorkflowTransitionsTotal.WithLabelValues("soft_delete", "ok").Inc()
	return nil
}

// Restore takes an article out of the recycle bin, resuming its previous
// workflow status.
func (s *WorkflowService) Restore(ctx context.Context, id string) error {
	article, err := s.getAny(ctx, id)
	if err != nil {
		return err
	}
	if !article.IsDeleted {
		return ErrNotDeleted
	}

	updates := map[string]any{
		"is_deleted": false,
		"deleted_at": nil,
	}
	if err := s.guardedUpdate(ctx, article, updates); err != nil {
		return err
	}

	s.logger.Info("Article restored", zap.Uint("article_id", article.ID))
	metrics.WorkflowTransitionsTotal.WithLabelValues("restore", "ok").Inc()
	return nil
}

// HardDelete permanently removes the article and asks the media host to
// release its attachments. Irreversible.
func (s *WorkflowService) HardDelete(ctx context.Context, id string, role models.Role) error {
	if !s.allowed(role, actionHardDelete) {
		return ErrForbidden
	}

	article, err := s.getAny(ctx, id)
	if err != nil {
		return err
	}

	s.releaseAttachment(ctx, article.Image)
	s.releaseAttachment(ctx, article.Video)

	if err := s.db.WithContext(ctx).Delete(&models.Article{}, article.ID).Error; err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}

	s.logger.Info("Article permanently deleted", zap.Uint("article_id", article.ID))
	metrics.WorkflowTransitionsTotal.WithLabelValues("hard_delete", "ok").Inc()
	return nil
}

// Get returns a single non-deleted article.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Article, error) {
	return s.getActive(ctx, id)
}

// RecycleBin lists soft-deleted articles, newest deletion first.
func (s *WorkflowService) RecycleBin(ctx context.Context) ([]models.Article, error) {
	var articles []models.Article
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", true).
		Order("deleted_at DESC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recycle bin: %w", err)
	}
	return articles, nil
}

// Helper methods

func parseID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, ErrInvalidID
	}
	return uint(n), nil
}

func (s *WorkflowService) getActive(ctx context.Context, id string) (*models.Article, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var article models.Article
	err = s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", n, false).
		First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}
	return &article, nil
}

// getAny loads an article regardless of deletion state, for the recycle-bin
// operations.
func (s *WorkflowService) getAny(ctx context.Context, id string) (*models.Article, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var article models.Article
	err = s.db.WithContext(ctx).First(&article, n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article: %w", err)
	}
	return &article, nil
}

// guardedUpdate applies updates only if the row still carries the version
// the article was read at, bumping the version in the same write. A lost
// race surfaces as ErrConflict.
func (s *WorkflowService) guardedUpdate(ctx context.Context, article *models.Article, updates map[string]any) error {
	updates["version"] = article.Version + 1

	res := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND version = ?", article.ID, article.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update article: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: article was modified concurrently", ErrConflict)
	}
	return nil
}

// uniqueSlug derives the slug from the title, appending a short random
// suffix only when the plain slug is already taken.
func (s *WorkflowService) uniqueSlug(ctx context.Context, title string) (string, error) {
	slug := util.GenerateSlug(title)
	if slug == "" {
		slug = util.ShortID()
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("slug = ?", slug).
		Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to check slug: %w", err)
	}
	if count > 0 {
		slug = slug + "-" + util.ShortID()
	}
	return slug, nil
}

// releaseAttachment asks the media host to free a previous attachment.
// Failures are logged only: the article write is the primary action and has
// already been decided.
func (s *WorkflowService) releaseAttachment(ctx context.Context, att models.Attachment) {
	if att.ExternalID == "" || s.media == nil {
		return
	}
	if err := s.media.Release(ctx, att.ExternalID); err != nil {
		s.logger.Error("Failed to release media attachment",
			zap.String("external_id", att.ExternalID),
			zap.Error(err))
	}
}
