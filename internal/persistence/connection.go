package persistence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	mongoAppName        = "storefront-cart"
	DefaultMongoMaxPool = 50
)

// MongoOptions configures the snapshot database connection.
type MongoOptions struct {
	URI      string
	Database string
	// MaxPoolSize caps connections; carts save on every mutation, so it
	// bounds concurrent snapshot writes. Zero means DefaultMongoMaxPool.
	MaxPoolSize uint64
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	maxPool := o.MaxPoolSize
	if maxPool == 0 {
		maxPool = DefaultMongoMaxPool
	}
	return options.Client().
		ApplyURI(o.URI).
		SetAppName(mongoAppName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(min(5, maxPool)).
		SetWriteConcern(writeconcern.Majority())
}

// ConnectMongoDB connects and pings the primary. The client is
// disconnected again when the ping fails.
func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(opts.Database), nil
}
