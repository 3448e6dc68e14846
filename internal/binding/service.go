package binding

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/normanking/emotedriver/internal/bus"
)

// Service is the cache-first entry point: callers ask for a model's binding
// table and the service consults the cache before falling back to
// resolution, storing fresh results.
type Service struct {
	resolver *Resolver
	cache    *Cache
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewService wires resolver and cache together. eventBus may be nil.
func NewService(resolver *Resolver, cache *Cache, eventBus *bus.EventBus, logger zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "binding").Logger(),
	}
}

// TableFor returns the binding table for a model, loading from cache when
// possible and resolving the manifest otherwise. Freshly resolved tables
// are stored back; a store failure is logged, not returned, since the
// in-memory table is still usable.
func (s *Service) TableFor(modelPath string, manifest []RawVariable) Table {
	model := filepath.Base(modelPath)

	if table, ok := s.cache.Load(modelPath); ok {
		s.publish(bus.EventTypeBindingCacheHit, model)
		return table
	}
	s.publish(bus.EventTypeBindingCacheMiss, model)

	table := s.resolver.Resolve(manifest)
	s.publish(bus.EventTypeBindingResolved, model)

	if err := s.cache.Store(modelPath, table); err != nil {
		s.logger.Warn().Err(err).Str("model", model).Msg("Binding cache store failed")
	}
	return table
}

// SaveEdits persists a user-edited table for the model, overwriting the
// cached copy.
func (s *Service) SaveEdits(modelPath string, table Table) error {
	return s.cache.Store(modelPath, table)
}

func (s *Service) publish(t bus.EventType, model string) {
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: t, Data: map[string]any{"model": model}})
	}
}
