package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/cache"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

// State tracks how far the store has progressed toward the authoritative
// server history.
type State string

const (
	StateEmpty     State = "empty"
	StateHydrating State = "hydrating"
	StateLoading   State = "loading"
	StateLive      State = "live"
)

// HistorySource resolves the active session and fetches its history page.
// The narrator REST client satisfies this.
type HistorySource interface {
	GetActiveSession(ctx context.Context, campaignID string) (sessionID string, err error)
	GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}

// Store merges three disagreeing sources into one canonical ordered message
// list: the persisted local cache, the paginated server history, and live
// events. The cache is a latency optimization, not a durable log; server
// history supersedes it on conflict. After going live, the list only grows;
// the sole shrink path is Reset with a new session key.
type Store struct {
	source    HistorySource
	cache     cache.TimelineCache
	pageLimit int
	log       *logger.Logger

	mu        sync.Mutex
	key       cache.Key
	sessionID string
	state     State
	messages  []models.Message
	byID      map[string]struct{}
	version   uint64

	// live events appended before the store goes Live; re-applied after the
	// history page replaces the list so the replace never loses them
	pending []models.Message
}

// NewStore creates a store for the given session key and synchronously
// hydrates it from the local cache, so the view has content before any
// network round trip completes.
func NewStore(key cache.Key, source HistorySource, tc cache.TimelineCache, pageLimit int, log *logger.Logger) *Store {
	s := &Store{
		source:    source,
		cache:     tc,
		pageLimit: pageLimit,
		log:       log.WithComponent("timeline"),
		key:       key,
		state:     StateEmpty,
		byID:      make(map[string]struct{}),
	}
	s.hydrate()
	return s
}

// hydrate publishes the cached timeline immediately.
func (s *Store) hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateHydrating
	cached, ok := s.cache.Load(context.Background(), s.key)
	if !ok {
		return
	}
	s.replaceLocked(cached)
	s.log.Info("hydrated timeline from cache", "messages", len(cached))
}

// Load resolves the active session (when none is known yet), fetches the most
// recent history page and replaces the hydrated timeline with it. Live events
// appended while the fetch was in flight are re-applied after the replace.
// Fetch faults are logged and swallowed: the store keeps whatever it already
// has.
func (s *Store) Load(ctx context.Context, campaignID string) {
	s.mu.Lock()
	s.state = StateLoading
	sessionID := s.sessionID
	s.mu.Unlock()

	if sessionID == "" {
		resolved, err := s.source.GetActiveSession(ctx, campaignID)
		if err != nil {
			s.log.Warn("active session resolution failed, staying on cached view", "error", err.Error())
			s.goLive()
			return
		}
		sessionID = resolved
		s.mu.Lock()
		s.sessionID = sessionID
		s.mu.Unlock()
	}

	fetched, err := s.source.GetSessionHistory(ctx, sessionID, s.pageLimit)
	if err != nil {
		s.log.Warn("history fetch failed, staying on cached view", "error", err.Error())
		s.goLive()
		return
	}

	s.mu.Lock()
	s.replaceLocked(fetched)
	for _, m := range s.pending {
		if _, dup := s.byID[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, m)
		s.byID[m.ID] = struct{}{}
	}
	s.pending = nil
	s.state = StateLive
	s.mu.Unlock()

	s.persist()
	s.log.Info("timeline loaded from server history", "messages", len(fetched))
}

func (s *Store) goLive() {
	s.mu.Lock()
	// pending entries were never replaced away, so the buffer just ends here
	s.pending = nil
	s.state = StateLive
	s.mu.Unlock()
}

// Append merges a live event into the timeline. Messages already present by
// id are not re-inserted, so re-delivery is idempotent.
func (s *Store) Append(msg models.Message) bool {
	s.mu.Lock()
	if _, dup := s.byID[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = struct{}{}
	if s.state != StateLive {
		s.pending = append(s.pending, msg)
	}
	s.version++
	s.mu.Unlock()

	s.persist()
	return true
}

// Reset switches the store to a new session key, dropping the old timeline.
// This is the only operation allowed to shrink the visible list.
func (s *Store) Reset(key cache.Key) {
	s.mu.Lock()
	s.key = key
	s.sessionID = ""
	s.messages = nil
	s.byID = make(map[string]struct{})
	s.pending = nil
	s.state = StateEmpty
	s.version++
	s.mu.Unlock()

	s.hydrate()
}

// Messages returns a copy of the current timeline in merge order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the store's lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version increments on every mutation; consumers can use it to cheaply skip
// unchanged snapshots.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Len returns the current timeline length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// replaceLocked swaps the whole timeline. Caller holds s.mu.
func (s *Store) replaceLocked(msgs []models.Message) {
	s.messages = make([]models.Message, 0, len(msgs))
	s.byID = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := s.byID[m.ID]; dup {
			continue
		}
		s.messages = append(s.messages, m)
		s.byID[m.ID] = struct{}{}
	}
	s.version++
}

// persist writes the full timeline to the local cache, fire and forget.
func (s *Store) persist() {
	s.mu.Lock()
	key := s.key
	snapshot := make([]models.Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	go func() {
		if err := s.cache.Store(context.Background(), key, snapshot); err != nil {
			s.log.Warn("timeline cache write failed", "error", err.Error())
		}
	}()
}
