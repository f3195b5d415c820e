package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"secretsanta/internal/storage"

	"github.com/google/logger"
)

// exchangeGroup holds the engine for a single gift-exchange group.
type exchangeGroup struct {
	engine       *Engine
	lastActivity time.Time
}

// ExchangeService manages one engine per group, loading each from the
// store on first use.
type ExchangeService struct {
	mu     sync.Mutex
	kv     storage.KV
	opts   []Option
	now    func() time.Time
	groups map[string]*exchangeGroup // Key: groupID
}

// NewExchangeService creates an ExchangeService backed by kv. opts are
// applied to every engine it creates.
func NewExchangeService(kv storage.KV, opts ...Option) *ExchangeService {
	return &ExchangeService{
		kv:     kv,
		opts:   opts,
		now:    time.Now,
		groups: make(map[string]*exchangeGroup),
	}
}

// Group returns the engine for groupID, loading it if it is not in memory.
func (s *ExchangeService) Group(ctx context.Context, groupID string) (*Engine, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, ErrInvalidGroup
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.groups[groupID]
	if !exists {
		engine, err := LoadEngine(ctx, storage.NewRecords(s.kv, groupID), s.opts...)
		if err != nil {
			return nil, err
		}
		g = &exchangeGroup{engine: engine}
		s.groups[groupID] = g
		logger.Infof("Loaded group %s", groupID)
	}
	g.lastActivity = s.now()
	return g.engine, nil
}

// Groups returns the ids of the groups currently held in memory.
func (s *ExchangeService) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CleanUpInactiveGroups drops groups idle for longer than maxIdle from
// memory. Their state is already persisted and reloads on next access.
func (s *ExchangeService) CleanUpInactiveGroups(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for groupID, g := range s.groups {
		if s.now().Sub(g.lastActivity) > maxIdle {
			delete(s.groups, groupID)
			evicted++
			logger.Infof("Evicted inactive group: %s", groupID)
		}
	}
	return evicted
}

// Forget removes a group's engine from memory.
func (s *ExchangeService) Forget(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
}
