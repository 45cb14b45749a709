package storage

import (
	"context"
	"io"
	"time"
)

// Snapshot is one stored database-volume archive plus its metadata.
type Snapshot struct {
	ID         string
	Metadata   Metadata
	DataReader io.Reader
}

// Metadata describes a stored snapshot. It is persisted as JSON next to
// the archive data.
type Metadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Project     string    `json:"project,omitempty"`
	VolumeName  string    `json:"volume_name,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Version     string    `json:"version,omitempty"`
	Description string    `json:"description,omitempty"`
	Encrypted   bool      `json:"encrypted,omitempty"`
}

// Backend stores and retrieves snapshots. Implementations exist for a
// local directory, S3 and GCS.
type Backend interface {
	Store(ctx context.Context, snap *Snapshot) error
	Retrieve(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]Metadata, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

const (
	dataFileName = "data.tar.gz"
	metaFileName = "metadata.json"
)

// Config selects and configures a storage backend.
type Config struct {
	Type  string
	Local *LocalConfig
	GCS   *GCSConfig
	S3    *S3Config
}

type LocalConfig struct {
	BasePath string
}

type GCSConfig struct {
	Bucket      string
	ProjectID   string
	Credentials string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}
