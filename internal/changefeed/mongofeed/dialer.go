// Package mongofeed implements the change feed on a MongoDB change stream
// over the hazards collection. Change documents are converted into the same
// JSON envelope the PostgreSQL trigger publishes.
package mongofeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/saferoute/hazardwatch/internal/changefeed"
	"github.com/saferoute/hazardwatch/internal/hazard"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Dialer opens change streams on Database.Collection.
type Dialer struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// NewDialer returns a Dialer for the given deployment and namespace.
func NewDialer(uri, database, collection string, connectTimeout time.Duration) *Dialer {
	if collection == "" {
		collection = "hazards"
	}
	return &Dialer{URI: uri, Database: database, Collection: collection, ConnectTimeout: connectTimeout}
}

// Dial implements changefeed.Dialer.
func (d *Dialer) Dial(ctx context.Context) (changefeed.Conn, error) {
	opts := options.Client().ApplyURI(d.URI)
	if d.ConnectTimeout > 0 {
		opts.SetConnectTimeout(d.ConnectTimeout).SetServerSelectionTimeout(d.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &conn{
		client: client,
		coll:   client.Database(d.Database).Collection(d.Collection),
	}, nil
}

// HazardDocument is the stored shape of a hazard in MongoDB.
type HazardDocument struct {
	ID             int64        `bson:"_id"`
	HazardType     string       `bson:"hazard_type"`
	Severity       string       `bson:"severity"`
	Description    string       `bson:"description"`
	Location       GeoJSONPoint `bson:"location"`
	PriorityLevel  int          `bson:"priority_level"`
	AffectsTraffic bool         `bson:"affects_traffic"`
	WeatherRelated bool         `bson:"weather_related"`
	Status         string       `bson:"status"`
	CreatedAt      time.Time    `bson:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at"`
}

// GeoJSONPoint stores coordinates as [longitude, latitude].
type GeoJSONPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type changeDocument struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID int64 `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             *HazardDocument `bson:"fullDocument"`
	FullDocumentBeforeChange *HazardDocument `bson:"fullDocumentBeforeChange"`
	WallTime                 time.Time       `bson:"wallTime"`
}

type conn struct {
	client *mongo.Client
	coll   *mongo.Collection

	mu     sync.Mutex
	stream *mongo.ChangeStream
}

func (c *conn) Listen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := c.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	c.stream = stream
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil, errors.New("change stream not open")
	}

	for stream.Next(ctx) {
		var change changeDocument
		if err := stream.Decode(&change); err != nil {
			return nil, fmt.Errorf("decode change document: %w", err)
		}
		env, ok := toEnvelope(change)
		if !ok {
			continue
		}
		return json.Marshal(env)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	var errs []error
	if stream != nil {
		errs = append(errs, stream.Close(ctx))
	}
	errs = append(errs, c.client.Disconnect(ctx))
	return errors.Join(errs...)
}

// toEnvelope converts a change document. Deletes without a pre-image carry
// no location and are passed through without coordinates; the decoder then
// rejects them.
func toEnvelope(change changeDocument) (hazard.Envelope, bool) {
	var eventType string
	doc := change.FullDocument
	switch change.OperationType {
	case "insert":
		eventType = hazard.EventTypeCreated
	case "update", "replace":
		eventType = hazard.EventTypeUpdated
	case "delete":
		eventType = hazard.EventTypeDeleted
		doc = change.FullDocumentBeforeChange
	default:
		return hazard.Envelope{}, false
	}

	id := change.DocumentKey.ID
	env := hazard.Envelope{EventType: eventType, HazardID: &id}
	if !change.WallTime.IsZero() {
		env.Timestamp = change.WallTime.UTC().Format(time.RFC3339Nano)
	}
	if doc == nil {
		return env, true
	}

	env.HazardType = doc.HazardType
	env.Severity = doc.Severity
	env.Description = doc.Description
	env.PriorityLevel = doc.PriorityLevel
	env.AffectsTraffic = doc.AffectsTraffic
	env.WeatherRelated = doc.WeatherRelated
	env.Status = doc.Status
	if len(doc.Location.Coordinates) == 2 {
		lon, lat := doc.Location.Coordinates[0], doc.Location.Coordinates[1]
		env.Latitude, env.Longitude = &lat, &lon
	}
	if eventType == hazard.EventTypeDeleted {
		env.Description = ""
	}
	return env, true
}
