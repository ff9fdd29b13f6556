// Package content manages the editable marketing copy blocks shown on the
// public site.
package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/domain/content"
	"github.com/apex-authority/backoffice/internal/events"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Auditor records admin actions.
type Auditor interface {
	Record(ctx context.Context, actor, action, table, recordID string, oldValue, newValue any) error
}

// Service manages content blocks.
type Service struct {
	store       storage.ContentStore
	auditor     Auditor
	notifier    *events.Notifier
	broadcaster *broadcast.Broadcaster
	log         *logging.Logger
}

// New constructs the content service. auditor, notifier and broadcaster may
// be nil.
func New(store storage.ContentStore, auditor Auditor, notifier *events.Notifier, broadcaster *broadcast.Broadcaster, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("content")
	}
	return &Service{
		store:       store,
		auditor:     auditor,
		notifier:    notifier,
		broadcaster: broadcaster,
		log:         log,
	}
}

func validate(blk content.Block) (content.Block, error) {
	blk.Section = strings.TrimSpace(blk.Section)
	blk.Key = strings.TrimSpace(blk.Key)
	if blk.Section == "" {
		return content.Block{}, fmt.Errorf("section is required")
	}
	if blk.Key == "" {
		return content.Block{}, fmt.Errorf("key is required")
	}
	return blk, nil
}

// Create stores a new block.
func (s *Service) Create(ctx context.Context, blk content.Block, actor, originID string) (content.Block, error) {
	blk, err := validate(blk)
	if err != nil {
		return content.Block{}, err
	}

	created, err := s.store.CreateContent(ctx, blk)
	if err != nil {
		return content.Block{}, fmt.Errorf("create content: %w", err)
	}

	s.record(ctx, actor, "create", created.ID, nil, created)
	s.announce(ctx, created, originID)
	return created, nil
}

// Update replaces an existing block.
func (s *Service) Update(ctx context.Context, blk content.Block, actor, originID string) (content.Block, error) {
	blk, err := validate(blk)
	if err != nil {
		return content.Block{}, err
	}

	current, err := s.store.GetContent(ctx, blk.ID)
	if err != nil {
		return content.Block{}, err
	}

	updated, err := s.store.UpdateContent(ctx, blk)
	if err != nil {
		return content.Block{}, fmt.Errorf("update content: %w", err)
	}

	s.record(ctx, actor, "update", updated.ID, current, updated)
	s.announce(ctx, updated, originID)
	return updated, nil
}

// Get returns one block.
func (s *Service) Get(ctx context.Context, id string) (content.Block, error) {
	return s.store.GetContent(ctx, id)
}

// List returns blocks, optionally filtered by section.
func (s *Service) List(ctx context.Context, section string) ([]content.Block, error) {
	return s.store.ListContent(ctx, section)
}

// Published returns only blocks visible on the public site.
func (s *Service) Published(ctx context.Context, section string) ([]content.Block, error) {
	blocks, err := s.store.ListContent(ctx, section)
	if err != nil {
		return nil, err
	}
	visible := blocks[:0]
	for _, blk := range blocks {
		if blk.Published {
			visible = append(visible, blk)
		}
	}
	return visible, nil
}

// Delete removes a block.
func (s *Service) Delete(ctx context.Context, id, actor, originID string) error {
	current, err := s.store.GetContent(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteContent(ctx, id); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}

	s.record(ctx, actor, "delete", id, current, nil)
	s.announce(ctx, current, originID)
	return nil
}

func (s *Service) record(ctx context.Context, actor, action, recordID string, oldValue, newValue any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, actor, action, database.TableContent, recordID, oldValue, newValue); err != nil {
		s.log.WithError(err).Warn("audit record failed")
	}
}

func (s *Service) announce(ctx context.Context, blk content.Block, originID string) {
	if s.notifier != nil {
		s.notifier.Content.Publish(blk)
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventContentUpdated}, originID); err != nil {
			s.log.WithError(err).Warn("content broadcast failed")
		}
	}
}
