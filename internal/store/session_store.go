package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// SessionStore covers Session/SessionDocument/Message persistence, with the
// message_index monotonicity invariant spec §8 names enforced atomically
// alongside the saved pair (assistant reply commits with its own index bump
// in one transaction).
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendMessage assigns the next monotone message_index and bumps
// session.message_count in the same transaction (spec §5/§8).
func (s *SessionStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Where("id = ?", msg.SessionID).First(&session).Error; err != nil {
			return err
		}

		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		msg.MessageIndex = session.MessageCount
		msg.CreatedAt = time.Now()
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(&models.Session{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
			"message_count": session.MessageCount + 1,
			"updated_at":    time.Now(),
		}).Error
	})
}

func (s *SessionStore) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("message_index DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *SessionStore) MessagesSince(ctx context.Context, sessionID uuid.UUID, sinceIndex int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND message_index > ?", sessionID, sinceIndex).
		Order("message_index ASC").
		Find(&msgs).Error
	return msgs, err
}

// UpdateSummary persists the progressive rolling summary + key facts onto
// the session (database is source of truth, per Design Notes §9).
func (s *SessionStore) UpdateSummary(ctx context.Context, sessionID uuid.UUID, summary string, keyFacts []string, summarizedIndex int) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", sessionID).Updates(map[string]interface{}{
		"last_summary_text":      summary,
		"last_summary_key_facts": models.StringList(keyFacts),
		"last_summarized_index":  summarizedIndex,
		"updated_at":             time.Now(),
	}).Error
}

func (s *SessionStore) LinkDocument(ctx context.Context, sessionID, documentID uuid.UUID) error {
	edge := models.SessionDocument{SessionID: sessionID, DocumentID: documentID, LinkedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&edge).Error
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
