// Package settings keeps the authoritative site settings snapshot in sync
// with the remote store and tells the rest of the system when it changes.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/domain/settings"
	"github.com/apex-authority/backoffice/internal/events"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
)

// Service caches the current Site snapshot and coordinates writes.
type Service struct {
	store       storage.SettingsStore
	notifier    *events.Notifier
	broadcaster *broadcast.Broadcaster
	metrics     *metrics.Registry
	log         *logging.Logger

	mu     sync.RWMutex
	site   settings.Site
	loaded bool
	// fetchGen orders concurrent refreshes so a slow fetch cannot clobber a
	// newer snapshot.
	fetchGen   uint64
	appliedGen uint64
}

// New constructs the settings service. notifier, broadcaster and metrics may
// be nil.
func New(store storage.SettingsStore, notifier *events.Notifier, broadcaster *broadcast.Broadcaster, reg *metrics.Registry, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("settings")
	}
	return &Service{
		store:       store,
		notifier:    notifier,
		broadcaster: broadcaster,
		metrics:     reg,
		log:         log,
		site:        settings.Defaults(),
	}
}

// Current returns the cached snapshot. Hard-coded defaults are served until
// the first successful refresh so the public site always has usable values.
func (s *Service) Current() settings.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.site
}

// Loaded reports whether the cache holds store-backed data.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Invalidate marks the cache stale. The next Refresh repopulates it; reads in
// the meantime keep serving the previous snapshot.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// Refresh fetches all setting rows and rebuilds the snapshot. It reports
// whether the snapshot changed. When a newer refresh completed while this one
// was fetching, the stale result is discarded and changed is false.
func (s *Service) Refresh(ctx context.Context) (settings.Site, bool, error) {
	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.mu.Unlock()

	rows, err := s.store.ListSettingRows(ctx)
	if err != nil {
		return s.Current(), false, fmt.Errorf("list settings: %w", err)
	}

	site, unknown := settings.FromRows(rows)
	for _, key := range unknown {
		s.log.WithField("key", key).Warn("ignoring unrecognised setting key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.appliedGen {
		return s.site, false, nil
	}
	s.appliedGen = gen

	changed := !s.site.Equal(site) || !s.loaded
	previous := s.site
	s.site = site
	s.loaded = true

	if changed && s.notifier != nil && !previous.Equal(site) {
		s.notifier.Settings.Publish(site)
	}
	return site, changed, nil
}

// Update validates and persists a patch key by key, applying each successful
// write to the cached snapshot. Failed keys are collected and reported; keys
// that succeeded stay persisted and visible.
func (s *Service) Update(ctx context.Context, patch settings.Patch, originID string) (settings.Site, error) {
	rows, err := patch.Rows()
	if err != nil {
		return s.Current(), err
	}
	if len(rows) == 0 {
		return s.Current(), fmt.Errorf("patch contains no changes")
	}

	var failed []string
	var errs []error
	applied := 0

	for _, row := range rows {
		if err := s.store.UpsertSettingRows(ctx, []settings.Row{row}); err != nil {
			failed = append(failed, row.Key)
			errs = append(errs, fmt.Errorf("%s: %w", row.Key, err))
			if s.metrics != nil {
				s.metrics.RecordSettingsWrite(false)
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordSettingsWrite(true)
		}

		s.mu.Lock()
		next, applyErr := s.site.Apply(row)
		if applyErr == nil {
			s.site = next
		}
		s.mu.Unlock()
		if applyErr != nil {
			s.log.WithError(applyErr).WithField("key", row.Key).Warn("persisted setting could not be applied to cache")
			continue
		}
		applied++
	}

	site := s.Current()

	if applied > 0 {
		if s.notifier != nil {
			s.notifier.Settings.Publish(site)
		}
		if s.broadcaster != nil {
			if err := s.broadcaster.Send(ctx, broadcast.Message{Event: broadcast.EventSettingsUpdated}, originID); err != nil {
				s.log.WithError(err).Warn("settings broadcast failed")
			}
		}
	}

	if len(failed) > 0 {
		return site, fmt.Errorf("failed to update %s: %w", strings.Join(failed, ", "), errors.Join(errs...))
	}
	return site, nil
}

// CategoryAvailable reports whether applications for the numbered category
// are currently accepted.
func (s *Service) CategoryAvailable(n int) (bool, error) {
	site := s.Current()
	cat, err := site.Category(n)
	if err != nil {
		return false, err
	}
	return cat.Available && cat.Status == settings.StatusAvailable, nil
}
