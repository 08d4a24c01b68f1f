package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newshub/newsdesk/internal/models"
)

func TestCreateEntryStates(t *testing.T) {
	ctx := context.Background()

	t.Run("privileged author publishes immediately", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		before := time.Now()
		article, err := svc.Create(ctx, CreateInput{Title: "Breaking: Market Drop"}, 1, models.RoleAdmin)
		require.NoError(t, err)

		assert.Equal(t, models.StatusApproved, article.Status)
		assert.True(t, article.Published)
		require.NotNil(t, article.PublishedAt)
		assert.False(t, article.PublishedAt.Before(before))
		assert.False(t, article.PublishedAt.After(time.Now()))
	})

	t.Run("editor role is also privileged", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		article, err := svc.Create(ctx, CreateInput{Title: "Budget Passed"}, 2, models.RoleEditor)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, article.Status)
		assert.True(t, article.Published)
	})

	t.Run("non-privileged submission goes to review", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		article, err := svc.Create(ctx, CreateInput{Title: "Local Election"}, 3, models.RoleReporter)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, article.Status)
		assert.False(t, article.Published)
		assert.Nil(t, article.PublishedAt)
	})

	t.Run("future publish date queues the article", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		publishAt := time.Now().Add(time.Hour)
		article, err := svc.Create(ctx, CreateInput{Title: "Storm Warning", PublishDate: &publishAt}, 3, models.RoleReporter)
		require.NoError(t, err)

		assert.Equal(t, models.StatusScheduled, article.Status)
		assert.False(t, article.Published)
		require.NotNil(t, article.PublishedAt)
		assert.True(t, article.PublishedAt.Equal(publishAt))
	})

	t.Run("past publish date falls back to review", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		publishAt := time.Now().Add(-time.Hour)
		article, err := svc.Create(ctx, CreateInput{Title: "Old News", PublishDate: &publishAt}, 3, models.RoleReporter)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, article.Status)
	})

	t.Run("explicit draft stays private", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		article, err := svc.Create(ctx, CreateInput{Title: "Notes", Draft: true}, 3, models.RoleContributor)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, article.Status)
		assert.False(t, article.Published)
	})

	t.Run("blank title is rejected before any write", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestWorkflow(t, db, nil)

		_, err := svc.Create(ctx, CreateInput{Title: ""}, 3, models.RoleReporter)
		require.Error(t, err)

		var count int64
		require.NoError(t, db.Model(&models.Article{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestCreateSlugUniqueness(t *testing.T) {
	ctx := context.Background()
	svc := newTestWorkflow(t, newTestDB(t), nil)

	first, err := svc.Create(ctx, CreateInput{Title: "Storm Warning"}, 1, models.RoleAdmin)
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Title: "Storm Warning"}, 1, models.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, "storm-warning", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "storm-warning")
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("pending article is approved without a publish time", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Pending Piece"}, 3, models.RoleReporter)
		require.NoError(t, err)

		approved, err := svc.Approve(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		require.NoError(t, err)

		assert.Equal(t, models.StatusApproved, approved.Status)
		assert.True(t, approved.Published)
		// The approve path never assigns published_at; only create does.
		assert.Nil(t, approved.PublishedAt)
	})

	t.Run("rejected article can be approved", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Second Chance"}, 3, models.RoleReporter)
		require.NoError(t, err)
		_, err = svc.Reject(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		require.NoError(t, err)

		approved, err := svc.Approve(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, approved.Status)
	})

	t.Run("draft cannot be approved", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Still Writing", Draft: true}, 3, models.RoleReporter)
		require.NoError(t, err)

		_, err = svc.Approve(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("non-privileged role is refused", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Pending Piece"}, 3, models.RoleReporter)
		require.NoError(t, err)

		_, err = svc.Approve(ctx, fmt.Sprint(created.ID), models.RoleReporter)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		_, err := svc.Approve(ctx, "9999", models.RoleAdmin)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("pending article is rejected", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Needs Work"}, 3, models.RoleReporter)
		require.NoError(t, err)

		rejected, err := svc.Reject(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rejected.Status)
		assert.False(t, rejected.Published)
	})

	t.Run("approved article cannot be rejected", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Already Live"}, 1, models.RoleAdmin)
		require.NoError(t, err)

		_, err = svc.Reject(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("title change regenerates slug, status untouched", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Draft Title"}, 3, models.RoleReporter)
		require.NoError(t, err)

		newTitle := "Final Title"
		updated, err := svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Title: &newTitle}, 3)
		require.NoError(t, err)

		assert.Equal(t, "Final Title", updated.Title)
		assert.Equal(t, "final-title", updated.Slug)
		assert.Equal(t, models.StatusPending, updated.Status)
	})

	t.Run("non-author actor is recorded as editor", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Ownership"}, 3, models.RoleReporter)
		require.NoError(t, err)

		body := "copy edited"
		updated, err := svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Body: &body}, 7)
		require.NoError(t, err)

		require.NotNil(t, updated.EditorID)
		assert.Equal(t, uint(7), *updated.EditorID)
	})

	t.Run("author edit does not set editor", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Self Edit"}, 3, models.RoleReporter)
		require.NoError(t, err)

		body := "tweaked"
		updated, err := svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Body: &body}, 3)
		require.NoError(t, err)
		assert.Nil(t, updated.EditorID)
	})

	t.Run("replacing an attachment releases the previous one exactly once", func(t *testing.T) {
		media := &fakeMediaHost{}
		svc := newTestWorkflow(t, newTestDB(t), media)

		created, err := svc.Create(ctx, CreateInput{
			Title: "Photo Story",
			Image: &models.Attachment{URL: "https://media.test/a", ExternalID: "img-old"},
		}, 3, models.RoleReporter)
		require.NoError(t, err)

		updated, err := svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{
			Image: &models.Attachment{URL: "https://media.test/b", ExternalID: "img-new"},
		}, 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"img-old"}, media.released)
		assert.Equal(t, "img-new", updated.Image.ExternalID)
	})

	t.Run("update without attachment change releases nothing", func(t *testing.T) {
		media := &fakeMediaHost{}
		svc := newTestWorkflow(t, newTestDB(t), media)

		created, err := svc.Create(ctx, CreateInput{
			Title: "Photo Story",
			Image: &models.Attachment{URL: "https://media.test/a", ExternalID: "img-old"},
		}, 3, models.RoleReporter)
		require.NoError(t, err)

		body := "new paragraph"
		_, err = svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Body: &body}, 3)
		require.NoError(t, err)
		assert.Empty(t, media.released)
	})

	t.Run("stale version is a retryable conflict", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Contested"}, 3, models.RoleReporter)
		require.NoError(t, err)

		body := "first writer"
		_, err = svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Body: &body, Version: created.Version}, 3)
		require.NoError(t, err)

		body2 := "second writer, stale read"
		_, err = svc.Update(ctx, fmt.Sprint(created.ID), UpdateInput{Body: &body2, Version: created.Version}, 4)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("malformed id", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		body := "x"
		_, err := svc.Update(ctx, "not-a-number", UpdateInput{Body: &body}, 3)
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		body := "x"
		_, err := svc.Update(ctx, "424242", UpdateInput{Body: &body}, 3)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("soft delete keeps workflow status for restore", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestWorkflow(t, db, nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Removable"}, 1, models.RoleAdmin)
		require.NoError(t, err)
		id := fmt.Sprint(created.ID)

		require.NoError(t, svc.SoftDelete(ctx, id))

		// Hidden from normal reads
		_, err = svc.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)

		// Visible in the recycle bin
		bin, err := svc.RecycleBin(ctx)
		require.NoError(t, err)
		require.Len(t, bin, 1)
		assert.Equal(t, models.StatusApproved, bin[0].Status)
		require.NotNil(t, bin[0].DeletedAt)

		require.NoError(t, svc.Restore(ctx, id))

		restored, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, restored.Status)
		assert.False(t, restored.IsDeleted)
		assert.Nil(t, restored.DeletedAt)
	})

	t.Run("double delete errors but state remains deleted", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Twice"}, 1, models.RoleAdmin)
		require.NoError(t, err)
		id := fmt.Sprint(created.ID)

		require.NoError(t, svc.SoftDelete(ctx, id))
		assert.ErrorIs(t, svc.SoftDelete(ctx, id), ErrAlreadyDeleted)

		bin, err := svc.RecycleBin(ctx)
		require.NoError(t, err)
		assert.Len(t, bin, 1)
	})

	t.Run("restore on a live article is a precondition failure", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Never Deleted"}, 1, models.RoleAdmin)
		require.NoError(t, err)

		err = svc.Restore(ctx, fmt.Sprint(created.ID))
		assert.ErrorIs(t, err, ErrNotDeleted)

		// No mutation happened
		after, err := svc.Get(ctx, fmt.Sprint(created.ID))
		require.NoError(t, err)
		assert.Equal(t, created.Version, after.Version)
	})
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the record and releases all attachments", func(t *testing.T) {
		media := &fakeMediaHost{}
		db := newTestDB(t)
		svc := newTestWorkflow(t, db, media)

		created, err := svc.Create(ctx, CreateInput{
			Title: "Gone For Good",
			Image: &models.Attachment{URL: "https://media.test/i", ExternalID: "img-1"},
			Video: &models.Attachment{URL: "https://media.test/v", ExternalID: "vid-1"},
		}, 1, models.RoleAdmin)
		require.NoError(t, err)

		require.NoError(t, svc.HardDelete(ctx, fmt.Sprint(created.ID), models.RoleAdmin))

		assert.ElementsMatch(t, []string{"img-1", "vid-1"}, media.released)

		var count int64
		require.NoError(t, db.Model(&models.Article{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("only admin may purge", func(t *testing.T) {
		svc := newTestWorkflow(t, newTestDB(t), nil)

		created, err := svc.Create(ctx, CreateInput{Title: "Protected"}, 1, models.RoleAdmin)
		require.NoError(t, err)

		err = svc.HardDelete(ctx, fmt.Sprint(created.ID), models.RoleEditor)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}
