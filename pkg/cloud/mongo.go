// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// MongoConfig configures a MongoStore.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string

	// ConnectTimeout bounds the initial ping (default: 5s)
	ConnectTimeout time.Duration
}

// collection is the subset of *mongo.Collection used by MongoStore.
type collection interface {
	UpdateByID(ctx context.Context, id interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// MongoStore upserts encrypted records into a MongoDB collection. Each
// document's _id is the composite {userId, category, id}.
type MongoStore struct {
	client *mongo.Client
	coll   collection
	clock  clockwork.Clock
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, errors.New("cloud: mongo uri is required")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New("cloud: mongo database and collection are required")
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("cloud: mongo connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("cloud: mongo ping: %w", err)
	}

	return &MongoStore{
		client: cli,
		coll:   cli.Database(cfg.Database).Collection(cfg.Collection),
		clock:  clockwork.NewRealClock(),
	}, nil
}

// Name returns "mongo".
func (m *MongoStore) Name() string { return "mongo" }

// UpsertEncrypted replaces the document for (userID, category, id),
// creating it if absent.
func (m *MongoStore) UpsertEncrypted(ctx context.Context, userID, category, id string, payload *types.EncryptedPayload) (err error) {
	start := time.Now()
	defer func() { observe(m.Name(), start, err) }()

	if err := checkUpsert(userID, category, id, payload); err != nil {
		return err
	}

	now := m.clock.Now().UTC()
	_, err = m.coll.UpdateByID(
		ctx,
		mongoID(userID, category, id),
		bson.M{
			"$set": bson.M{
				"payload":       payload,
				"updatedAt":     now,
				"schemaVersion": payload.Ver,
			},
			"$setOnInsert": bson.M{
				"userId":    userID,
				"category":  category,
				"id":        id,
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return syncErr(m.Name(), err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoStore) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func mongoID(userID, category, id string) bson.D {
	return bson.D{
		{Key: "userId", Value: userID},
		{Key: "category", Value: category},
		{Key: "id", Value: id},
	}
}

var _ Adapter = (*MongoStore)(nil)
