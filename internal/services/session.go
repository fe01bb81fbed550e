package services

import (
	"log"
	"sync"
	"time"

	"github.com/orderease/backend/internal/models"
)

// Conversation stages
const (
	StageWelcome           = "welcome"
	StageBrowsing          = "browsing"
	StageOrdering          = "ordering"
	StageConfirmingOrder   = "confirming_order"
	StageCollectingDetails = "collecting_details"
	StagePaymentPending    = "payment_pending"
	StageOrderPlaced       = "order_placed"
	StageTracking          = "tracking"
)

const (
	sessionTTL        = 30 * time.Minute
	maxMessageHistory = 10
)

// SessionMessage is one entry in the rolling conversation history
type SessionMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"` // "user" or "bot"
}

// PendingOrder is the order being built inside a conversation, before it is
// persisted as a draft
type PendingOrder struct {
	Items       []models.OrderItem `json:"items"`
	TotalAmount float64            `json:"total_amount"`
}

// Session tracks one customer's conversation state, keyed by phone number
type Session struct {
	PhoneNumber      string           `json:"phone_number"`
	Stage            string           `json:"stage"`
	PendingOrder     PendingOrder     `json:"pending_order"`
	CustomerInfo     models.Customer  `json:"customer_info"`
	MessageHistory   []SessionMessage `json:"message_history"`
	RetryCount       int              `json:"retry_count"`
	DraftOrderID     string           `json:"draft_order_id"`
	CompletedOrderID string           `json:"completed_order_id"`
	CreatedAt        time.Time        `json:"created_at"`
	LastActivity     time.Time        `json:"last_activity"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

// AddMessage appends to the rolling history, keeping only the last entries
func (s *Session) AddMessage(text, direction string) {
	s.MessageHistory = append(s.MessageHistory, SessionMessage{
		Text:      text,
		Timestamp: time.Now(),
		Direction: direction,
	})
	if len(s.MessageHistory) > maxMessageHistory {
		s.MessageHistory = s.MessageHistory[len(s.MessageHistory)-maxMessageHistory:]
	}
}

// UpdateStage moves the conversation forward and resets the retry counter
func (s *Session) UpdateStage(stage string) {
	s.Stage = stage
	s.RetryCount = 0
}

// clone copies the session including its slices, so two goroutines never
// share backing arrays
func (s *Session) clone() *Session {
	cp := *s
	cp.MessageHistory = append([]SessionMessage(nil), s.MessageHistory...)
	cp.PendingOrder.Items = append([]models.OrderItem(nil), s.PendingOrder.Items...)
	return &cp
}

// Reset returns the session to its initial state with an empty draft
func (s *Session) Reset() {
	s.Stage = StageWelcome
	s.PendingOrder = PendingOrder{}
	s.CustomerInfo = models.Customer{}
	s.MessageHistory = nil
	s.RetryCount = 0
	s.DraftOrderID = ""
	s.CompletedOrderID = ""
}

// SessionStore persists conversation sessions. Implementations must treat
// expired sessions as absent, serialize WithLock calls per phone number, and
// hand out private copies from Get so callers never share mutable state.
type SessionStore interface {
	Get(phone string) (*Session, error) // nil, nil when absent or expired
	Save(session *Session) error        // refreshes expiry to now+TTL
	Delete(phone string) error
	WithLock(phone string, fn func() error) error
}

// SessionManager wraps a SessionStore with conversation-level operations
type SessionManager struct {
	store SessionStore
}

// NewSessionManager creates a new session manager
func NewSessionManager(store SessionStore) *SessionManager {
	return &SessionManager{store: store}
}

// FindOrCreateSession returns the active session for a phone number,
// creating one in the welcome stage if absent
func (sm *SessionManager) FindOrCreateSession(phone string) (*Session, error) {
	session, err := sm.store.Get(phone)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	now := time.Now()
	session = &Session{
		PhoneNumber:  phone,
		Stage:        StageWelcome,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if err := sm.store.Save(session); err != nil {
		return nil, err
	}
	log.Printf("Session created for %s", phone)
	return session, nil
}

// GetSession returns the active session or nil
func (sm *SessionManager) GetSession(phone string) (*Session, error) {
	return sm.store.Get(phone)
}

// SaveSession persists the session, refreshing its expiry
func (sm *SessionManager) SaveSession(session *Session) error {
	return sm.store.Save(session)
}

// ClearSession resets an existing session back to the welcome stage
func (sm *SessionManager) ClearSession(phone string) error {
	session, err := sm.store.Get(phone)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	session.Reset()
	return sm.store.Save(session)
}

// WithLock serializes all session mutations for one phone number
func (sm *SessionManager) WithLock(phone string, fn func() error) error {
	return sm.store.WithLock(phone, fn)
}

// MemorySessionStore keeps sessions in memory with a janitor goroutine that
// evicts expired entries
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMemorySessionStore creates an in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
	go s.cleanupExpiredSessions()
	return s
}

func (s *MemorySessionStore) Get(phone string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[phone]
	if !exists {
		return nil, nil
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil
	}
	return session.clone(), nil
}

func (s *MemorySessionStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session.LastActivity = now
	session.ExpiresAt = now.Add(sessionTTL)
	// store a copy so the caller's pointer stays private
	s.sessions[session.PhoneNumber] = session.clone()
	return nil
}

func (s *MemorySessionStore) Delete(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, phone)
	return nil
}

// WithLock serializes callers per phone number
func (s *MemorySessionStore) WithLock(phone string, fn func() error) error {
	s.lockMu.Lock()
	lock, exists := s.locks[phone]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[phone] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// cleanupExpiredSessions runs periodically to evict expired sessions
func (s *MemorySessionStore) cleanupExpiredSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		for phone, session := range s.sessions {
			if time.Now().After(session.ExpiresAt) {
				delete(s.sessions, phone)
				log.Printf("Cleaned up expired session for %s", phone)
			}
		}
		s.mu.Unlock()
	}
}
