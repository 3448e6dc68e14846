package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Rule classifies raw names whose lowercased form contains any of the
// keywords. Rules are ordered; the first hit wins.
type Rule struct {
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
	Tag      string   `json:"tag,omitempty"`
}

type ruleDocument struct {
	SemanticRules []Rule `json:"semantic_rules"`
}

// Rules is an explicitly owned, reloadable rule set backed by an external
// JSON document. A missing or unreadable file degrades to an empty set,
// logged once; it is never fatal.
type Rules struct {
	path   string
	logger zerolog.Logger

	mu            sync.RWMutex
	rules         []Rule
	missingLogged bool
}

// LoadRules reads the rule document at path. The returned object is always
// usable; load failures leave it empty.
func LoadRules(path string, logger zerolog.Logger) *Rules {
	r := &Rules{
		path:   path,
		logger: logger.With().Str("component", "rules").Logger(),
	}
	if err := r.Reload(); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Rule configuration unavailable, semantic matching disabled")
		r.mu.Lock()
		r.missingLogged = true
		r.mu.Unlock()
	}
	return r
}

// Reload re-reads the rule document. On failure the previous rule set is
// kept.
func (r *Rules) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}

	r.mu.Lock()
	r.rules = doc.SemanticRules
	r.missingLogged = false
	r.mu.Unlock()

	r.logger.Info().Int("rules", len(doc.SemanticRules)).Msg("Semantic rules loaded")
	return nil
}

// Empty reports whether no rules are loaded.
func (r *Rules) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules) == 0
}

// Snapshot returns a copy of the current rule list.
func (r *Rules) Snapshot() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules...)
}

// Watch reloads the rule set whenever the backing file changes, until the
// context is cancelled. onReload may be nil.
func (r *Rules) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					r.logger.Warn().Err(err).Msg("Rule reload after file change failed")
					continue
				}
				if onReload != nil {
					onReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(err).Msg("Rules watcher error")
			}
		}
	}()
	return nil
}
