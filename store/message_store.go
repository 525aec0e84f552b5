package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talentlink/messaging/models"
)

// IngestResult reports what a remote merge actually changed, so the caller can
// bump conversation metadata and unread counts without rescanning the store.
type IngestResult struct {
	Added         []models.Message
	NewFromOthers int
	Newest        *models.Message
}

// MessageStore is the authoritative local cache of messages, keyed by
// conversation id and ordered by created-at (insertion order breaks ties).
// Mutations for expected races (stale reconcile, repeated ingest, repeated
// mark-read) are silent no-ops, never errors.
type MessageStore interface {
	AppendOptimistic(conversationID string, draft models.DraftMessage, sender models.Participant) models.Message
	Reconcile(conversationID, localID string, server models.Message) bool
	MarkFailed(conversationID, localID, reason string) bool
	IngestRemote(conversationID string, batch []models.Message) IngestResult
	MarkRead(conversationID string, messageIDs []string) map[string]models.MessageStatus
	RevertStatus(conversationID string, previous map[string]models.MessageStatus)
	Messages(conversationID string) []models.Message
	Get(conversationID, messageID string) (models.Message, bool)
	Drop(conversationID string)
	Subscribe(fn func(conversationID string)) func()
}

type entry struct {
	msg models.Message
	seq uint64
}

// messageStore struct
type messageStore struct {
	mu          sync.RWMutex
	localUserID string
	byConv      map[string][]*entry
	seq         uint64
	subMu       sync.Mutex
	subs        map[int]func(string)
	nextSub     int
}

// NewMessageStore creates a new instance of MessageStore. localUserID is the
// identity whose sends are never counted as unread and never marked read.
func NewMessageStore(localUserID string) MessageStore {
	return &messageStore{
		localUserID: localUserID,
		byConv:      map[string][]*entry{},
		subs:        map[int]func(string){},
	}
}

func (s *messageStore) Subscribe(fn func(conversationID string)) func() {
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

func (s *messageStore) notify(conversationID string) {
	s.subMu.Lock()
	fns := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(conversationID)
	}
}

// AppendOptimistic inserts a SENDING message with a locally generated id at the
// tail of the conversation. Always succeeds synchronously.
func (s *messageStore) AppendOptimistic(conversationID string, draft models.DraftMessage, sender models.Participant) models.Message {
	now := time.Now()
	kind := draft.Kind
	if kind == "" {
		kind = models.KindText
	}
	msg := models.Message{
		ID:               "local-" + uuid.NewString(),
		ConversationID:   conversationID,
		Content:          draft.Content,
		Sender:           sender,
		Recipients:       draft.Recipients,
		CreatedAt:        now,
		UpdatedAt:        now,
		Status:           models.StatusSending,
		Kind:             kind,
		Attachments:      draft.Attachments,
		EntityReferences: draft.EntityReferences,
		ScheduledFor:     draft.ScheduledFor,
	}

	s.mu.Lock()
	s.seq++
	s.byConv[conversationID] = append(s.byConv[conversationID], &entry{msg: msg, seq: s.seq})
	s.sortLocked(conversationID)
	s.mu.Unlock()

	s.notify(conversationID)
	return msg
}

// Reconcile replaces the optimistic message at localID with the server copy,
// adopting the server id and moving status to SENT. Returns false when the
// local message is already gone; the store may have moved on and that is fine.
// If a concurrent fetch already ingested the server id, the placeholder is
// dropped instead, keeping the id unique within the conversation.
func (s *messageStore) Reconcile(conversationID, localID string, server models.Message) bool {
	s.mu.Lock()
	e := s.findLocked(conversationID, localID)
	if e == nil {
		s.mu.Unlock()
		return false
	}
	if server.ID != localID && s.findLocked(conversationID, server.ID) != nil {
		s.removeLocked(conversationID, localID)
		s.mu.Unlock()
		s.notify(conversationID)
		return true
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = e.msg.CreatedAt
	}
	if server.UpdatedAt.IsZero() {
		server.UpdatedAt = server.CreatedAt
	}
	if server.Status == "" || server.Status == models.StatusSending {
		server.Status = models.StatusSent
	}
	server.ConversationID = conversationID
	e.msg = server
	s.sortLocked(conversationID)
	s.mu.Unlock()

	s.notify(conversationID)
	return true
}

// MarkFailed tags a SENDING message as FAILED and keeps it in place so the
// user can retry or dismiss it.
func (s *messageStore) MarkFailed(conversationID, localID, reason string) bool {
	s.mu.Lock()
	e := s.findLocked(conversationID, localID)
	if e == nil || !e.msg.Status.CanTransition(models.StatusFailed) {
		s.mu.Unlock()
		return false
	}
	e.msg.Status = models.StatusFailed
	e.msg.FailReason = reason
	s.mu.Unlock()

	s.notify(conversationID)
	return true
}

// IngestRemote merges a fetched batch by id. Present messages are replaced
// only when the incoming copy is newer by updated-at (and status never moves
// backwards); unseen ids are inserted in sorted position. Calling it twice
// with the same batch changes nothing the second time.
func (s *messageStore) IngestRemote(conversationID string, batch []models.Message) IngestResult {
	var res IngestResult

	s.mu.Lock()
	for _, in := range batch {
		if in.ID == "" {
			continue
		}
		in.ConversationID = conversationID
		if in.Status == "" {
			in.Status = models.StatusSent
		}
		if e := s.findLocked(conversationID, in.ID); e != nil {
			if in.UpdatedAt.After(e.msg.UpdatedAt) {
				if !e.msg.Status.CanTransition(in.Status) {
					in.Status = e.msg.Status
				}
				e.msg = in
			}
			continue
		}
		s.seq++
		s.byConv[conversationID] = append(s.byConv[conversationID], &entry{msg: in, seq: s.seq})
		res.Added = append(res.Added, in)
		if in.Sender.ID != s.localUserID &&
			(in.Status == models.StatusSent || in.Status == models.StatusDelivered) {
			res.NewFromOthers++
		}
		if res.Newest == nil || in.CreatedAt.After(res.Newest.CreatedAt) {
			cp := in
			res.Newest = &cp
		}
	}
	s.sortLocked(conversationID)
	s.mu.Unlock()

	if len(res.Added) > 0 {
		s.notify(conversationID)
	}
	return res
}

// MarkRead moves SENT or DELIVERED messages not authored by the local user to
// READ. It returns the previous status of every message it changed so a failed
// read receipt can be rolled back; everything else is skipped silently.
func (s *messageStore) MarkRead(conversationID string, messageIDs []string) map[string]models.MessageStatus {
	changed := map[string]models.MessageStatus{}

	s.mu.Lock()
	for _, id := range messageIDs {
		e := s.findLocked(conversationID, id)
		if e == nil {
			continue
		}
		if e.msg.Sender.ID == s.localUserID {
			continue
		}
		if e.msg.Status != models.StatusSent && e.msg.Status != models.StatusDelivered {
			continue
		}
		changed[id] = e.msg.Status
		e.msg.Status = models.StatusRead
		e.msg.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		s.notify(conversationID)
	}
	return changed
}

// RevertStatus restores statuses recorded by MarkRead. Rollback path only; it
// bypasses the forward-only transition check.
func (s *messageStore) RevertStatus(conversationID string, previous map[string]models.MessageStatus) {
	if len(previous) == 0 {
		return
	}
	s.mu.Lock()
	for id, st := range previous {
		if e := s.findLocked(conversationID, id); e != nil {
			e.msg.Status = st
		}
	}
	s.mu.Unlock()
	s.notify(conversationID)
}

func (s *messageStore) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byConv[conversationID]
	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.msg)
	}
	return out
}

func (s *messageStore) Get(conversationID, messageID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.findLocked(conversationID, messageID); e != nil {
		return e.msg, true
	}
	return models.Message{}, false
}

// Drop clears a conversation's messages (archive path).
func (s *messageStore) Drop(conversationID string) {
	s.mu.Lock()
	delete(s.byConv, conversationID)
	s.mu.Unlock()
	s.notify(conversationID)
}

func (s *messageStore) removeLocked(conversationID, messageID string) {
	entries := s.byConv[conversationID]
	for i, e := range entries {
		if e.msg.ID == messageID {
			s.byConv[conversationID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (s *messageStore) findLocked(conversationID, messageID string) *entry {
	for _, e := range s.byConv[conversationID] {
		if e.msg.ID == messageID {
			return e
		}
	}
	return nil
}

func (s *messageStore) sortLocked(conversationID string) {
	entries := s.byConv[conversationID]
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].msg.CreatedAt.Equal(entries[j].msg.CreatedAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].msg.CreatedAt.Before(entries[j].msg.CreatedAt)
	})
}
