package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kisan-sarthi/backend/internal/models"
)

// GridFSStore implements Store on a MongoDB GridFS bucket. File ids are
// uuid strings so they look the same as LocalStore ids in media URLs.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

// gridFile is the subset of a GridFS files document we read back.
type gridFile struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"filename"`
	Length     int64     `bson:"length"`
	UploadDate time.Time `bson:"uploadDate"`
	Metadata   struct {
		ContentType string `bson:"contentType"`
	} `bson:"metadata"`
}

func (f gridFile) info() *models.FileInfo {
	return &models.FileInfo{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.Metadata.ContentType,
		Size:        f.Length,
		UploadedAt:  f.UploadDate.UTC(),
	}
}

// ConnectMongo dials uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewGridFSStore opens the named bucket in database db.
func NewGridFSStore(client *mongo.Client, db, bucket string) (*GridFSStore, error) {
	b, err := gridfs.NewBucket(client.Database(db), options.GridFSBucket().SetName(bucket))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSStore{bucket: b}, nil
}

// Save uploads r as a new GridFS file. The driver removes the chunks of an
// upload that fails part way.
func (s *GridFSStore) Save(ctx context.Context, name, contentType string, r io.Reader) (*models.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	name = filepath.Base(name)
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if err := s.bucket.UploadFromStreamWithID(id, name, &ctxReader{ctx: ctx, r: r}, opts); err != nil {
		return nil, fmt.Errorf("gridfs upload: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves file metadata by ID.
func (s *GridFSStore) Get(ctx context.Context, id string) (*models.FileInfo, error) {
	cur, err := s.bucket.FindContext(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("gridfs find: %w", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("gridfs find: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	var f gridFile
	if err := cur.Decode(&f); err != nil {
		return nil, fmt.Errorf("gridfs decode: %w", err)
	}
	return f.info(), nil
}

// Open returns a download stream over the file content.
func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, *models.FileInfo, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
		}
		return nil, nil, fmt.Errorf("gridfs download: %w", err)
	}
	return stream, info, nil
}

// Delete removes the file and its chunks.
func (s *GridFSStore) Delete(ctx context.Context, id string) error {
	if err := s.bucket.DeleteContext(ctx, id); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, id)
		}
		return fmt.Errorf("gridfs delete: %w", err)
	}
	return nil
}

// List returns the most recent files.
func (s *GridFSStore) List(ctx context.Context, limit int) ([]*models.FileInfo, error) {
	opts := options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int32(limit))
	}
	cur, err := s.bucket.FindContext(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("gridfs find: %w", err)
	}
	var files []gridFile
	if err := cur.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("gridfs decode: %w", err)
	}
	list := make([]*models.FileInfo, 0, len(files))
	for _, f := range files {
		list = append(list, f.info())
	}
	return list, nil
}
