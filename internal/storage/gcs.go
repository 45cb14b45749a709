package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorage stores snapshots under "<id>/data.tar.gz" and
// "<id>/metadata.json" object names.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

func NewGCSStorage(ctx context.Context, config *GCSConfig) (*GCSStorage, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required for GCS storage")
	}

	var opts []option.ClientOption
	if config.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(config.Credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: config.Bucket,
	}, nil
}

func (g *GCSStorage) dataObject(id string) string {
	return id + "/" + dataFileName
}

func (g *GCSStorage) metaObject(id string) string {
	return id + "/" + metaFileName
}

func (g *GCSStorage) Store(ctx context.Context, snap *Snapshot) error {
	bucket := g.client.Bucket(g.bucket)

	w := bucket.Object(g.dataObject(snap.ID)).NewWriter(ctx)
	if _, err := io.Copy(w, snap.DataReader); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write snapshot data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	metaWriter := bucket.Object(g.metaObject(snap.ID)).NewWriter(ctx)
	if err := json.NewEncoder(metaWriter).Encode(snap.Metadata); err != nil {
		_ = metaWriter.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := metaWriter.Close(); err != nil {
		return fmt.Errorf("failed to close metadata writer: %w", err)
	}

	return nil
}

func (g *GCSStorage) Retrieve(ctx context.Context, id string) (*Snapshot, error) {
	bucket := g.client.Bucket(g.bucket)

	metaReader, err := bucket.Object(g.metaObject(id)).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, fmt.Errorf("snapshot not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer func() {
		_ = metaReader.Close()
	}()

	var metadata Metadata
	if err := json.NewDecoder(metaReader).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	dataReader, err := bucket.Object(g.dataObject(id)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}

	return &Snapshot{
		ID:         id,
		Metadata:   metadata,
		DataReader: dataReader,
	}, nil
}

func (g *GCSStorage) List(ctx context.Context) ([]Metadata, error) {
	bucket := g.client.Bucket(g.bucket)

	var snapshots []Metadata
	it := bucket.Objects(ctx, &storage.Query{})

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		if !strings.HasSuffix(attrs.Name, "/"+metaFileName) {
			continue
		}

		reader, err := bucket.Object(attrs.Name).NewReader(ctx)
		if err != nil {
			continue
		}

		var metadata Metadata
		err = json.NewDecoder(reader).Decode(&metadata)
		_ = reader.Close()
		if err != nil {
			continue
		}

		snapshots = append(snapshots, metadata)
	}

	return snapshots, nil
}

func (g *GCSStorage) Delete(ctx context.Context, id string) error {
	bucket := g.client.Bucket(g.bucket)

	if err := bucket.Object(g.dataObject(id)).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete snapshot data: %w", err)
	}

	if err := bucket.Object(g.metaObject(id)).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	return nil
}

func (g *GCSStorage) Exists(ctx context.Context, id string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(g.metaObject(id)).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return true, nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}
