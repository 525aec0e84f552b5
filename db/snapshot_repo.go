package db

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/talentlink/messaging/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRecord mirrors a conversation into postgres so a restarted
// gateway can serve the last-known-good inbox before its first upstream fetch.
type ConversationRecord struct {
	ID        string `gorm:"primaryKey"`
	UpdatedAt time.Time
	Payload   []byte `gorm:"type:jsonb"`
}

type MessageRecord struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	CreatedAt      time.Time
	Payload        []byte `gorm:"type:jsonb"`
}

// SnapshotRepository interface
type SnapshotRepository interface {
	SaveConversations(convs []models.Conversation) error
	SaveMessages(conversationID string, msgs []models.Message) error
	DeleteConversation(id string) error
	Load() ([]models.Conversation, map[string][]models.Message, error)
}

// snapshotRepo struct
type snapshotRepo struct {
	DB *gorm.DB
}

// NewSnapshotRepo creates a new instance of SnapshotRepository.
func NewSnapshotRepo(db *GormDB) SnapshotRepository {
	return &snapshotRepo{db.DB}
}

func (r *snapshotRepo) SaveConversations(convs []models.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	records := make([]ConversationRecord, 0, len(convs))
	for _, c := range convs {
		payload, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "encoding conversation snapshot")
		}
		records = append(records, ConversationRecord{
			ID:        c.ID,
			UpdatedAt: c.UpdatedAt,
			Payload:   payload,
		})
	}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&records).Error
	return errors.Wrap(err, "saving conversation snapshots")
}

func (r *snapshotRepo) SaveMessages(conversationID string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		// optimistic placeholders are not snapshot material
		if m.Status == models.StatusSending || m.Status == models.StatusFailed {
			continue
		}
		payload, err := json.Marshal(m)
		if err != nil {
			return errors.Wrap(err, "encoding message snapshot")
		}
		records = append(records, MessageRecord{
			ID:             m.ID,
			ConversationID: conversationID,
			CreatedAt:      m.CreatedAt,
			Payload:        payload,
		})
	}
	if len(records) == 0 {
		return nil
	}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&records).Error
	return errors.Wrap(err, "saving message snapshots")
}

func (r *snapshotRepo) DeleteConversation(id string) error {
	if err := r.DB.Delete(&MessageRecord{}, "conversation_id = ?", id).Error; err != nil {
		return errors.Wrap(err, "deleting message snapshots")
	}
	err := r.DB.Delete(&ConversationRecord{}, "id = ?", id).Error
	return errors.Wrap(err, "deleting conversation snapshot")
}

func (r *snapshotRepo) Load() ([]models.Conversation, map[string][]models.Message, error) {
	var convRecords []ConversationRecord
	if err := r.DB.Find(&convRecords).Error; err != nil {
		return nil, nil, errors.Wrap(err, "loading conversation snapshots")
	}
	convs := make([]models.Conversation, 0, len(convRecords))
	for _, rec := range convRecords {
		var c models.Conversation
		if err := json.Unmarshal(rec.Payload, &c); err != nil {
			return nil, nil, errors.Wrap(err, "decoding conversation snapshot")
		}
		convs = append(convs, c)
	}

	var msgRecords []MessageRecord
	if err := r.DB.Order("created_at asc").Find(&msgRecords).Error; err != nil {
		return nil, nil, errors.Wrap(err, "loading message snapshots")
	}
	msgs := map[string][]models.Message{}
	for _, rec := range msgRecords {
		var m models.Message
		if err := json.Unmarshal(rec.Payload, &m); err != nil {
			return nil, nil, errors.Wrap(err, "decoding message snapshot")
		}
		msgs[rec.ConversationID] = append(msgs[rec.ConversationID], m)
	}
	return convs, msgs, nil
}
