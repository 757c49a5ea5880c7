package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hurricanerix/ocrchat/internal/logging"
)

const (
	// SessionInactivityTimeout is how long a session can be inactive before cleanup.
	SessionInactivityTimeout = 24 * time.Hour

	// SessionCleanupInterval is how often to run cleanup.
	SessionCleanupInterval = 1 * time.Hour

	// MaxSessions is the maximum number of sessions before LRU eviction.
	MaxSessions = 1000
)

// Session is one visitor's chats, their ordering, the active chat, and input
// waiting for the next turn.
//
// Invariants: the active chat, when set, is a key of chats; every chat has a
// title; chat IDs are never reused within a session.
type Session struct {
	mu sync.Mutex

	ID string

	chats       map[string]*Chat
	order       []string
	activeChat  string
	chatCounter int

	// Pending is input collected for the active chat's next turn.
	Pending Pending

	// chatImages holds thumbnails per chat, consumed oldest first by turns.
	chatImages map[string][]string
	// lastPreview is the most recent stored upload per chat.
	lastPreview map[string]string

	notices []Notice
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{
		ID:          id,
		chats:       make(map[string]*Chat),
		chatImages:  make(map[string][]string),
		lastPreview: make(map[string]string),
	}
}

// Lock acquires the session for the duration of an operation.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Chats returns the session's chats in creation order.
func (s *Session) Chats() []*Chat {
	out := make([]*Chat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id])
	}
	return out
}

// Chat returns the chat with the given ID.
func (s *Session) Chat(id string) (*Chat, bool) {
	c, ok := s.chats[id]
	return c, ok
}

// ActiveChat returns the active chat, or nil when there is none.
func (s *Session) ActiveChat() *Chat {
	if s.activeChat == "" {
		return nil
	}
	return s.chats[s.activeChat]
}

// ActiveChatID returns the active chat's ID, or "".
func (s *Session) ActiveChatID() string {
	return s.activeChat
}

// ChatCounter returns how many chats have ever been created in the session.
func (s *Session) ChatCounter() int {
	return s.chatCounter
}

// PendingImages returns how many thumbnails are waiting for a turn in chatID.
func (s *Session) PendingImages(chatID string) int {
	return len(s.chatImages[chatID])
}

// LastPreview returns the most recently stored upload for chatID.
func (s *Session) LastPreview(chatID string) string {
	return s.lastPreview[chatID]
}

// AddNotice queues a message for the next render.
func (s *Session) AddNotice(level NoticeLevel, text string) {
	s.notices = append(s.notices, Notice{Level: level, Text: text})
}

// TakeNotices returns and clears queued notices.
func (s *Session) TakeNotices() []Notice {
	n := s.notices
	s.notices = nil
	return n
}

func (s *Session) takeThumbnail(chatID string) string {
	queue := s.chatImages[chatID]
	if len(queue) == 0 {
		return ""
	}
	thumb := queue[0]
	if len(queue) == 1 {
		delete(s.chatImages, chatID)
	} else {
		s.chatImages[chatID] = queue[1:]
	}
	return thumb
}

// dropLastThumbnail removes the most recently queued thumbnail for chatID.
func (s *Session) dropLastThumbnail(chatID string) {
	queue := s.chatImages[chatID]
	switch len(queue) {
	case 0:
	case 1:
		delete(s.chatImages, chatID)
	default:
		s.chatImages[chatID] = queue[:len(queue)-1]
	}
}

// sessionInfo tracks a session and its last activity time.
type sessionInfo struct {
	session      *Session
	lastActivity time.Time
}

// Store provides thread-safe management of visitor sessions.
//
// Sessions are removed after SessionInactivityTimeout without activity by a
// background goroutine. If the session count reaches MaxSessions, the least
// recently used session is evicted to make room.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*sessionInfo
	logger        *logging.Logger
	now           func() time.Time
	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
}

// NewStore creates an empty store and starts its cleanup goroutine.
// Call Shutdown to stop it.
func NewStore(logger *logging.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		sessions:      make(map[string]*sessionInfo),
		logger:        logger,
		now:           time.Now,
		cancelCleanup: cancel,
		cleanupDone:   make(chan struct{}),
	}

	go s.cleanupLoop(ctx)

	return s
}

// GetOrCreate returns the session for id, creating it if needed, and marks
// it active.
func (s *Store) GetOrCreate(id string) *Session {
	now := s.now()

	s.mu.RLock()
	info, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		s.mu.Lock()
		info.lastActivity = now
		s.mu.Unlock()
		return info.session
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have created it while we waited for the lock.
	if info, ok := s.sessions[id]; ok {
		info.lastActivity = now
		return info.session
	}

	if len(s.sessions) >= MaxSessions {
		s.evictLRU()
	}

	session := NewSession(id)
	s.sessions[id] = &sessionInfo{session: session, lastActivity: now}
	s.logger.Debug("Created session %s (total: %d)", id, len(s.sessions))
	return session
}

// Get returns the session for id, or nil if it does not exist.
func (s *Store) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.sessions[id]; ok {
		return info.session
	}
	return nil
}

// Delete removes the session with the given ID.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown stops the cleanup goroutine and waits for it to finish.
func (s *Store) Shutdown() {
	if s.cancelCleanup != nil {
		s.cancelCleanup()
		<-s.cleanupDone
	}
}

func (s *Store) cleanupLoop(ctx context.Context) {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupInactiveSessions()
		}
	}
}

func (s *Store) cleanupInactiveSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for id, info := range s.sessions {
		if now.Sub(info.lastActivity) > SessionInactivityTimeout {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Cleaned up %d inactive sessions (total: %d)", removed, len(s.sessions))
	}
}

// evictLRU removes the least recently used session.
// Must be called with s.mu held for writing.
func (s *Store) evictLRU() {
	var oldestID string
	var oldestTime time.Time

	for id, info := range s.sessions {
		if oldestID == "" || info.lastActivity.Before(oldestTime) {
			oldestID = id
			oldestTime = info.lastActivity
		}
	}

	if oldestID != "" {
		delete(s.sessions, oldestID)
		s.logger.Info("Evicted LRU session (inactive for %v)", s.now().Sub(oldestTime))
	}
}
