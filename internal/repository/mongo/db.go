package mongo

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// Collection names shared by the repositories and index setup.
const (
	userCollectionName    = "users"
	termCollectionName    = "terms"
	bookingCollectionName = "bookings"
)

// ConnectDB establishes a connection to MongoDB using the provided URI and pings the primary.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Connect succeeds lazily; the ping is what proves the server answers.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}

	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection used by the API.
// The (termId, userId) unique index on bookings is required for correctness, so its failure is returned.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	EnsureUserIndexes(ctx, db.Collection(userCollectionName))
	EnsureTermIndexes(ctx, db.Collection(termCollectionName))
	return EnsureBookingIndexes(ctx, db.Collection(bookingCollectionName))
}

func logIndexError(collection *mongo.Collection, err error) {
	if err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
