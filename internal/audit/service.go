// Package audit is the diagnostic sink of the sync layer. Every recovered
// failure and every sync outcome is persisted and handed to live subscribers,
// so nothing degrades silently.
package audit

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/entities"
)

const maxMessageLen = 500

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	log  *zap.Logger

	mu     sync.RWMutex
	subs   map[int]chan entities.AuditEvent
	nextID int
}

// NewService creates a new audit service. repo may be nil, in which case
// events are only logged and fanned out.
func NewService(repo *audit.Repository, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.Named("audit"),
		subs: make(map[int]chan entities.AuditEvent),
	}
}

// Record persists the event and delivers it to every subscriber. Persistence
// failures are logged, never returned: a broken sink must not break the
// operation that reported to it.
func (s *Service) Record(ctx context.Context, event entities.AuditEvent) {
	event.Description = truncate(event.Description, maxMessageLen)
	event.ErrorMsg = truncate(event.ErrorMsg, maxMessageLen)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.logEvent(event)

	if s.repo != nil {
		if err := s.repo.LogEvent(context.WithoutCancel(ctx), &event); err != nil {
			s.log.Error("failed to persist audit event", zap.String("action", event.Action), zap.Error(err))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.log.Warn("audit subscriber is not keeping up, event dropped for it",
				zap.Int("subscriber", id), zap.String("action", event.Action))
		}
	}
}

// Subscribe returns a channel receiving every event recorded from now on and
// a function that unsubscribes and closes the channel.
func (s *Service) Subscribe(buffer int) (<-chan entities.AuditEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan entities.AuditEvent, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Events retrieves paginated audit events.
func (s *Service) Events(ctx context.Context, f audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	if s.repo == nil {
		return nil, 0, nil
	}
	return s.repo.Events(ctx, f, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.DeleteOldEvents(ctx, time.Now().Add(-retention))
}

func (s *Service) logEvent(event entities.AuditEvent) {
	fields := []zap.Field{
		zap.String("type", string(event.EventType)),
		zap.String("action", event.Action),
		zap.String("status", string(event.Status)),
	}
	if event.Kind != "" {
		fields = append(fields, zap.String("kind", string(event.Kind)))
	}
	if event.PassID != "" {
		fields = append(fields, zap.String("pass_id", event.PassID))
	}
	if event.EntityID != nil {
		fields = append(fields, zap.Uint("entity_id", *event.EntityID))
	}
	if event.ErrorMsg != "" {
		fields = append(fields, zap.String("error", event.ErrorMsg))
	}

	switch event.Status {
	case entities.AuditStatusFailed:
		s.log.Error(event.Description, fields...)
	case entities.AuditStatusDegraded:
		s.log.Warn(event.Description, fields...)
	default:
		s.log.Info(event.Description, fields...)
	}
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
