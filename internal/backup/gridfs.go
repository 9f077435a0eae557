package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// GridFSBucketName is the bucket artifacts are stored in
const GridFSBucketName = "attendance_backups"

// GridFSUploader stores artifact files in a MongoDB GridFS bucket.
type GridFSUploader struct {
	client   *mongo.Client
	bucket   *mongo.GridFSBucket
	terminal string
}

// NewGridFSUploader connects to MongoDB and opens the backup bucket.
func NewGridFSUploader(ctx context.Context, uri, dbName, terminal string) (*GridFSUploader, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Printf("backup: connected to MongoDB database %s", dbName)

	bucket := client.Database(dbName).GridFSBucket(options.GridFSBucket().SetName(GridFSBucketName))
	return &GridFSUploader{client: client, bucket: bucket, terminal: terminal}, nil
}

func (g *GridFSUploader) Name() string {
	return "gridfs"
}

// Upload streams the artifact file into the bucket under its base name.
func (g *GridFSUploader) Upload(ctx context.Context, a database.BackupArtifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	meta := bson.D{
		{Key: "terminal", Value: g.terminal},
		{Key: "kind", Value: string(a.Kind)},
		{Key: "label", Value: a.Label},
		{Key: "rows", Value: a.Rows},
		{Key: "cycle_id", Value: a.CycleID},
		{Key: "created_at", Value: a.CreatedAt},
	}
	opts := options.GridFSUpload().SetMetadata(meta)
	if _, err := g.bucket.UploadFromStream(ctx, filepath.Base(a.Path), f, opts); err != nil {
		return fmt.Errorf("gridfs upload: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (g *GridFSUploader) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}
