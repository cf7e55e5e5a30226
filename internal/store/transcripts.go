package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
)

// Transcript is the full record of a finished session.
type Transcript struct {
	Token        string                    `bson:"_id" json:"token"`
	Status       SessionStatus             `bson:"status" json:"status"`
	Reason       string                    `bson:"reason,omitempty" json:"reason,omitempty"`
	Turns        []agent.TurnRecord        `bson:"turns" json:"turns"`
	Conversation []agent.ConversationEntry `bson:"conversation" json:"conversation"`
	Summary      agent.Summary             `bson:"summary" json:"summary"`
	Elapsed      int                       `bson:"elapsed_seconds" json:"elapsedSeconds"`
	UpdatedAt    time.Time                 `bson:"updated_at" json:"updatedAt"`
}

// TranscriptStore keeps one transcript document per session token.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, t Transcript) error
	LoadTranscript(ctx context.Context, token string) (*Transcript, error)
}

// MongoTranscripts stores transcripts in a MongoDB collection.
type MongoTranscripts struct {
	col *mongo.Collection
}

// ConnectMongo dials uri and pings it within ten seconds.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

func NewMongoTranscripts(db *mongo.Database, collection string) *MongoTranscripts {
	if collection == "" {
		collection = "transcripts"
	}
	return &MongoTranscripts{col: db.Collection(collection)}
}

func (m *MongoTranscripts) SaveTranscript(ctx context.Context, t Transcript) error {
	t.UpdatedAt = time.Now().UTC()
	_, err := m.col.ReplaceOne(ctx, bson.M{"_id": t.Token}, t, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoTranscripts) LoadTranscript(ctx context.Context, token string) (*Transcript, error) {
	var t Transcript
	err := m.col.FindOne(ctx, bson.M{"_id": token}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MemoryTranscripts is an in-process TranscriptStore used when no document
// database is configured.
type MemoryTranscripts struct {
	mu   sync.Mutex
	docs map[string]Transcript
}

func NewMemoryTranscripts() *MemoryTranscripts {
	return &MemoryTranscripts{docs: make(map[string]Transcript)}
}

func (m *MemoryTranscripts) SaveTranscript(_ context.Context, t Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.UpdatedAt = time.Now().UTC()
	m.docs[t.Token] = t
	return nil
}

func (m *MemoryTranscripts) LoadTranscript(_ context.Context, token string) (*Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.docs[token]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
