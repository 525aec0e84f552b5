package store

import (
	"sort"
	"sync"
	"time"

	"github.com/talentlink/messaging/models"
)

// ConversationStore tracks per-conversation summaries and unread totals. It is
// the only writer of unread counts. Read receipts and fetches share one
// monotonically increasing token sequence per conversation, used both to
// reject stale unread counts from slow responses and to discard superseded
// fetches.
type ConversationStore interface {
	Upsert(conv models.Conversation)
	ApplyServer(conv models.Conversation, token uint64)
	Get(id string) (models.Conversation, bool)
	List() []models.Conversation
	ListAll() []models.Conversation
	Remove(id string) (models.Conversation, bool)
	SetActive(id string)
	ActiveID() string
	IncrementUnread(id string, by int)
	ReduceUnread(id string, by int, token uint64)
	ClearUnread(id string, token uint64)
	Begin(id string) uint64
	Current(id string) uint64
	BeginList() uint64
	CurrentList() uint64
	Touch(id string, at time.Time, last *models.MessageSummary)
	RestoreSummary(id string, at time.Time, last *models.MessageSummary)
	UnreadTotal() int
	Subscribe(fn func()) func()
}

// conversationStore struct
type conversationStore struct {
	mu        sync.RWMutex
	convs     map[string]*models.Conversation
	counter   uint64
	tokens    map[string]uint64
	listToken uint64
	readStamp map[string]uint64
	activeID  string
	subMu     sync.Mutex
	subs      map[int]func()
	nextSub   int
}

// NewConversationStore creates a new instance of ConversationStore.
func NewConversationStore() ConversationStore {
	return &conversationStore{
		convs:     map[string]*models.Conversation{},
		tokens:    map[string]uint64{},
		readStamp: map[string]uint64{},
		subs:      map[int]func(){},
	}
}

func (s *conversationStore) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *conversationStore) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Upsert inserts or merges conversation metadata from a local mutation. The
// merge keeps the larger unread count; use ApplyServer for fetch responses so
// the read-token rule applies.
func (s *conversationStore) Upsert(conv models.Conversation) {
	s.mu.Lock()
	s.mergeLocked(conv, true)
	s.mu.Unlock()
	s.notify()
}

// ApplyServer merges a fetched copy. A response issued before the latest
// explicit mark-read (token < read stamp) must not reintroduce a stale unread
// count, so its count is ignored in that case.
func (s *conversationStore) ApplyServer(conv models.Conversation, token uint64) {
	s.mu.Lock()
	trustCount := token >= s.readStamp[conv.ID]
	s.mergeLocked(conv, trustCount)
	s.mu.Unlock()
	s.notify()
}

func (s *conversationStore) mergeLocked(conv models.Conversation, trustCount bool) {
	existing, ok := s.convs[conv.ID]
	if !ok {
		cp := conv
		s.convs[conv.ID] = &cp
		return
	}

	unread := existing.UnreadCount
	if trustCount && conv.UnreadCount > unread {
		unread = conv.UnreadCount
	}

	if conv.UpdatedAt.After(existing.UpdatedAt) {
		last := existing.LastMessage
		if conv.LastMessage != nil && (last == nil || conv.LastMessage.SentAt.After(last.SentAt)) {
			last = conv.LastMessage
		}
		cp := conv
		cp.LastMessage = last
		*existing = cp
	} else {
		if len(conv.Participants) > 0 {
			existing.Participants = conv.Participants
		}
		if conv.Title != "" {
			existing.Title = conv.Title
		}
	}
	existing.UnreadCount = unread
	// a fresh copy from any source reinstates an archived conversation
	existing.IsArchived = false
}

func (s *conversationStore) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.convs[id]; ok {
		return *c, true
	}
	return models.Conversation{}, false
}

// List returns visible conversations sorted by updated-at descending.
func (s *conversationStore) List() []models.Conversation {
	return s.list(false)
}

// ListAll includes archived conversations; the projector's archived filter
// needs them.
func (s *conversationStore) ListAll() []models.Conversation {
	return s.list(true)
}

func (s *conversationStore) list(includeArchived bool) []models.Conversation {
	s.mu.RLock()
	out := make([]models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if c.IsArchived && !includeArchived {
			continue
		}
		out = append(out, *c)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Remove archives the conversation and returns the pre-removal snapshot for
// rollback. Reversible only by a fresh fetch (or the rollback re-upsert).
func (s *conversationStore) Remove(id string) (models.Conversation, bool) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok || c.IsArchived {
		s.mu.Unlock()
		return models.Conversation{}, false
	}
	snapshot := *c
	c.IsArchived = true
	c.UnreadCount = 0
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()
	s.notify()
	return snapshot, true
}

// SetActive marks which conversation is open; incoming messages for the active
// conversation are treated as already seen. Empty id means none.
func (s *conversationStore) SetActive(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
	s.notify()
}

func (s *conversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *conversationStore) IncrementUnread(id string, by int) {
	if by <= 0 {
		return
	}
	s.mu.Lock()
	if c, ok := s.convs[id]; ok && !c.IsArchived {
		c.UnreadCount += by
	}
	s.mu.Unlock()
	s.notify()
}

// ReduceUnread lowers the count after |by| messages were acknowledged read,
// stamping the round trip's token so older fetch responses can't resurrect
// the count.
func (s *conversationStore) ReduceUnread(id string, by int, token uint64) {
	if by <= 0 {
		return
	}
	s.mu.Lock()
	if c, ok := s.convs[id]; ok {
		c.UnreadCount -= by
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
	}
	if token > s.readStamp[id] {
		s.readStamp[id] = token
	}
	s.mu.Unlock()
	s.notify()
}

// ClearUnread zeroes the count after a whole-conversation mark-read round
// trip.
func (s *conversationStore) ClearUnread(id string, token uint64) {
	s.mu.Lock()
	if c, ok := s.convs[id]; ok {
		c.UnreadCount = 0
	}
	if token > s.readStamp[id] {
		s.readStamp[id] = token
	}
	s.mu.Unlock()
	s.notify()
}

// Begin issues the next request token for a conversation-scoped round trip
// (fetch or read receipt). Tokens come from one store-wide sequence so they
// stay comparable across list fetches and per-conversation operations.
func (s *conversationStore) Begin(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	s.tokens[id] = s.counter
	return s.counter
}

// Current returns the latest token issued for the conversation; a response
// whose token no longer matches has been superseded and its result should be
// discarded.
func (s *conversationStore) Current(id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[id]
}

// BeginList issues a token for a whole-list fetch.
func (s *conversationStore) BeginList() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	s.listToken = s.counter
	return s.counter
}

func (s *conversationStore) CurrentList() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listToken
}

// Touch bumps updated-at and the last-message preview after a message append.
func (s *conversationStore) Touch(id string, at time.Time, last *models.MessageSummary) {
	s.mu.Lock()
	if c, ok := s.convs[id]; ok {
		if at.After(c.UpdatedAt) {
			c.UpdatedAt = at
		}
		if last != nil && (c.LastMessage == nil || last.SentAt.After(c.LastMessage.SentAt)) {
			c.LastMessage = last
		}
	}
	s.mu.Unlock()
	s.notify()
}

// RestoreSummary puts updated-at and the preview back after a failed send, so
// a FAILED message leaves conversation ordering untouched.
func (s *conversationStore) RestoreSummary(id string, at time.Time, last *models.MessageSummary) {
	s.mu.Lock()
	if c, ok := s.convs[id]; ok {
		c.UpdatedAt = at
		c.LastMessage = last
	}
	s.mu.Unlock()
	s.notify()
}

func (s *conversationStore) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.convs {
		if !c.IsArchived {
			total += c.UnreadCount
		}
	}
	return total
}
