package documentdb

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoClient adapts *mongo.Client to the storage.Client port
type mongoClient struct {
	client *mongo.Client
}

func (c *mongoClient) StartSession(ctx context.Context) (storage.Session, error) {
	sess, err := c.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &mongoSession{session: sess}, nil
}

// mongoSession adapts mongo.Session to the storage.Session port
type mongoSession struct {
	session mongo.Session
}

func (s *mongoSession) StartTransaction(_ context.Context) error {
	return s.session.StartTransaction()
}

func (s *mongoSession) Commit(ctx context.Context) error {
	return s.session.CommitTransaction(ctx)
}

func (s *mongoSession) Rollback(ctx context.Context) error {
	return s.session.AbortTransaction(ctx)
}

func (s *mongoSession) End(ctx context.Context) {
	s.session.EndSession(ctx)
}

func (s *mongoSession) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.session)
}

// Dial connects to MongoDB at the given URI and verifies the connection.
// It is the DialFunc used in production wiring.
func Dial(ctx context.Context, target string) (storage.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(target))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	return &mongoClient{client: client}, nil
}

// Collection returns the named collection for a handle backed by a MongoDB
// session. Operations on it must use a context wrapped by handle.Context so
// they run under the handle's session.
func Collection(h *Handle, name string) (*mongo.Collection, error) {
	sess, ok := h.Session().(*mongoSession)
	if !ok {
		return nil, fmt.Errorf("handle %s is not backed by a MongoDB session", h.Key())
	}
	return sess.session.Client().Database(h.Database()).Collection(name), nil
}
