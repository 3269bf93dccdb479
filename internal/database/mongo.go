package database

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoDriver connects to a MongoDB deployment. Each Open creates a
// client; Close on the connection disconnects it.
type MongoDriver struct {
	config Config
}

// NewMongoDriver creates a new MongoDB driver
func NewMongoDriver(cfg Config) *MongoDriver {
	return &MongoDriver{config: cfg}
}

func (d *MongoDriver) Name() string { return DriverMongo }

func (d *MongoDriver) uri() string {
	if d.config.URI != "" {
		return d.config.URI
	}
	host, port := d.config.Host, d.config.Port
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "27017"
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port)
}

// Open connects and verifies the deployment answers a ping.
func (d *MongoDriver) Open(ctx context.Context, creds Credentials) (Conn, error) {
	opts := options.Client().ApplyURI(d.uri())
	if d.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(d.config.ConnectTimeout)
	}
	if creds.User != "" {
		opts.SetAuth(options.Credential{
			Username: creds.User,
			Password: creds.Password,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: ping failed: %v", ErrConnection, err)
	}

	name := d.config.Database
	if name == "" {
		name = "catalog"
	}
	return &mongoConn{client: client, db: client.Database(name)}, nil
}

// Close is a no-op; clients are owned by connections.
func (d *MongoDriver) Close(ctx context.Context) error { return nil }

type mongoConn struct {
	client *mongo.Client
	db     *mongo.Database
}

// mongoError classifies a driver error into the package sentinels.
func mongoError(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}

func (c *mongoConn) Find(ctx context.Context, coll string, filter bson.D, opts FindOptions) (DocCursor, error) {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}
	cur, err := c.db.Collection(coll).Find(ctx, filter, fo)
	if err != nil {
		return nil, mongoError(err)
	}
	return cur, nil
}

func (c *mongoConn) Count(ctx context.Context, coll string, filter bson.D) (int64, error) {
	n, err := c.db.Collection(coll).CountDocuments(ctx, filter)
	return n, mongoError(err)
}

func (c *mongoConn) Aggregate(ctx context.Context, coll string, pipeline []bson.D) (DocCursor, error) {
	stages := make(bson.A, len(pipeline))
	for i, s := range pipeline {
		stages[i] = s
	}
	cur, err := c.db.Collection(coll).Aggregate(ctx, stages)
	if err != nil {
		return nil, mongoError(err)
	}
	return cur, nil
}

func (c *mongoConn) UpdateOne(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error) {
	res, err := c.db.Collection(coll).UpdateOne(ctx, filter, update)
	if err != nil {
		return UpdateResult{}, mongoError(err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (c *mongoConn) UpdateMany(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error) {
	res, err := c.db.Collection(coll).UpdateMany(ctx, filter, update)
	if err != nil {
		return UpdateResult{}, mongoError(err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (c *mongoConn) Replace(ctx context.Context, coll string, doc bson.D) error {
	id, _ := lookupID(doc)
	_, err := c.db.Collection(coll).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}}, doc,
		options.Replace().SetUpsert(true))
	return mongoError(err)
}

func (c *mongoConn) Insert(ctx context.Context, coll string, doc bson.D) error {
	_, err := c.db.Collection(coll).InsertOne(ctx, doc)
	return mongoError(err)
}

func (c *mongoConn) DeleteOne(ctx context.Context, coll string, filter bson.D) (int64, error) {
	res, err := c.db.Collection(coll).DeleteOne(ctx, filter)
	if err != nil {
		return 0, mongoError(err)
	}
	return res.DeletedCount, nil
}

func (c *mongoConn) DeleteMany(ctx context.Context, coll string, filter bson.D) (int64, error) {
	res, err := c.db.Collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		return 0, mongoError(err)
	}
	return res.DeletedCount, nil
}

func (c *mongoConn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return nil
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
