// Package mongosink stores telemetry events as MongoDB documents.
package mongosink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

const DefaultCollection = "game_events"

// Document is the stored form of a telemetry event. The payload is kept as
// a nested document so it can be queried.
type Document struct {
	ID         string         `bson:"_id"`
	SessionID  string         `bson:"session_id"`
	GameID     string         `bson:"game_id,omitempty"`
	PlayerID   string         `bson:"player_id,omitempty"`
	RoundIndex int            `bson:"round_index"`
	Type       string         `bson:"type"`
	Timestamp  time.Time      `bson:"timestamp"`
	Payload    map[string]any `bson:"payload,omitempty"`
}

func toDocument(e telemetry.Event) (Document, error) {
	doc := Document{
		ID:         e.ID.String(),
		SessionID:  e.SessionID.String(),
		GameID:     e.GameID,
		PlayerID:   e.PlayerID,
		RoundIndex: e.RoundIndex,
		Type:       string(e.Type),
		Timestamp:  e.Timestamp.UTC(),
	}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &doc.Payload); err != nil {
			return Document{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
	}
	return doc, nil
}

func (d Document) event() (telemetry.Event, error) {
	e := telemetry.Event{
		GameID:     d.GameID,
		PlayerID:   d.PlayerID,
		RoundIndex: d.RoundIndex,
		Type:       telemetry.EventType(d.Type),
		Timestamp:  d.Timestamp,
	}
	var err error
	if e.ID, err = uuid.Parse(d.ID); err != nil {
		return telemetry.Event{}, fmt.Errorf("parse event id: %w", err)
	}
	if e.SessionID, err = uuid.Parse(d.SessionID); err != nil {
		return telemetry.Event{}, fmt.Errorf("parse session id: %w", err)
	}
	if d.Payload != nil {
		if e.Payload, err = json.Marshal(d.Payload); err != nil {
			return telemetry.Event{}, fmt.Errorf("encode payload: %w", err)
		}
	}
	return e, nil
}

// Sink writes events into one collection.
type Sink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri and pings the server before returning.
func Connect(ctx context.Context, uri, database, collection string) (*Sink, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(30 * time.Second).
		SetConnectTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Sink{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info().Str("database", database).Str("collection", collection).Msg("connected to MongoDB")
	return s, nil
}

func (s *Sink) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Write inserts the event. A duplicate event ID is treated as already
// written.
func (s *Sink) Write(ctx context.Context, e telemetry.Event) error {
	doc, err := toDocument(e)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert %s: %w", e.Type, err)
	}
	return nil
}

// ListSession returns a session's events oldest first.
func (s *Sink) ListSession(ctx context.Context, sessionID uuid.UUID) ([]telemetry.Event, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"session_id": sessionID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find session events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode session events: %w", err)
	}
	out := make([]telemetry.Event, 0, len(docs))
	for _, d := range docs {
		e, err := d.event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Sink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
