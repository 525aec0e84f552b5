package store

import (
	"context"
	"sync"

	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
)

// ParticipantSource fetches a participant the cache has never seen.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
}

// ParticipantDirectory resolves a participant id to display metadata. The
// cache is read-mostly and append-only: entries are never invalidated within a
// session, so insert-if-absent is the whole locking discipline.
type ParticipantDirectory interface {
	Resolve(id string) (models.Participant, bool)
	Put(p models.Participant)
	PutAll(ps []models.Participant)
	Lookup(ctx context.Context, id string) (models.Participant, error)
}

// participantDirectory struct
type participantDirectory struct {
	mu     sync.RWMutex
	cache  map[string]models.Participant
	source ParticipantSource
}

// NewParticipantDirectory creates a new instance of ParticipantDirectory.
// source may be nil; Lookup then only serves cached entries.
func NewParticipantDirectory(source ParticipantSource) ParticipantDirectory {
	return &participantDirectory{
		cache:  map[string]models.Participant{},
		source: source,
	}
}

func (d *participantDirectory) Resolve(id string) (models.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.cache[id]
	return p, ok
}

// Put inserts if absent; an already-cached participant is immutable.
func (d *participantDirectory) Put(p models.Participant) {
	if p.ID == "" {
		return
	}
	d.mu.Lock()
	if _, ok := d.cache[p.ID]; !ok {
		d.cache[p.ID] = p
	}
	d.mu.Unlock()
}

func (d *participantDirectory) PutAll(ps []models.Participant) {
	for _, p := range ps {
		d.Put(p)
	}
}

// Lookup is cache-aside: a hit never touches the network.
func (d *participantDirectory) Lookup(ctx context.Context, id string) (models.Participant, error) {
	if p, ok := d.Resolve(id); ok {
		return p, nil
	}
	if d.source == nil {
		return models.Participant{}, apiError.ErrNotFound
	}
	p, err := d.source.GetParticipant(ctx, id)
	if err != nil {
		return models.Participant{}, err
	}
	d.Put(*p)
	return *p, nil
}
