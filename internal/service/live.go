package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/models"
)

// LiveUpdate is the event emitted to a live blog's room.
type LiveUpdate struct {
	EntryID    uint              `json:"entry_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Attachment models.Attachment `json:"attachment"`
}

// Broadcaster is the boundary to the realtime transport. Emit is
// fire-and-forget: no acknowledgment is awaited.
type Broadcaster interface {
	Emit(room string, update LiveUpdate)
}

// LiveService records live blog entries and pushes them to the event room.
type LiveService struct {
	db          *gorm.DB
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewLiveService(db *gorm.DB, broadcaster Broadcaster, logger *zap.Logger) *LiveService {
	return &LiveService{
		db:          db,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AddEntry appends an entry to a live event and broadcasts it.
func (s *LiveService) AddEntry(ctx context.Context, eventSlug string, entry *models.LiveEntry) (*models.LiveEntry, error) {
	var event models.LiveEvent
	err := s.db.WithContext(ctx).Where("slug = ?", eventSlug).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load live event: %w", err)
	}

	entry.EventID = event.ID
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create live entry: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Emit(event.Slug, LiveUpdate{
			EntryID:    entry.ID,
			Title:      entry.Title,
			Content:    entry.Content,
			Attachment: entry.Attachment,
		})
	}

	s.logger.Info("Live entry added",
		zap.String("event", event.Slug),
		zap.Uint("entry_id", entry.ID))
	return entry, nil
}

// RoomBroadcaster is an in-process broadcaster delivering updates to
// subscribed channels per room. The realtime transport in front of it is an
// external collaborator.
type RoomBroadcaster struct {
	mu    sync.RWMutex
	rooms map[string][]chan LiveUpdate
}

func NewRoomBroadcaster() *RoomBroadcaster {
	return &RoomBroadcaster{
		rooms: make(map[string][]chan LiveUpdate),
	}
}

// Subscribe returns a channel receiving the room's updates.
func (b *RoomBroadcaster) Subscribe(room string) chan LiveUpdate {
	ch := make(chan LiveUpdate, 16)
	b.mu.Lock()
	b.rooms[room] = append(b.rooms[room], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel from a room.
func (b *RoomBroadcaster) Unsubscribe(room string, ch chan LiveUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.rooms[room]
	for i, sub := range subs {
		if sub == ch {
			b.rooms[room] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Emit delivers the update to every subscriber without blocking: a full
// subscriber buffer drops the update for that subscriber.
func (b *RoomBroadcaster) Emit(room string, update LiveUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.rooms[room] {
		select {
		case ch <- update:
		default:
		}
	}
}
