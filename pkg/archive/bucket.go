package archive

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "archive")

type BucketType string

const (
	MinioBucketType BucketType = "minio"
	AwsBucketType   BucketType = "aws"
	AzureBucketType BucketType = "azure"
	GcpBucketType   BucketType = "gcp"
)

// Bucket is an offsite store for finished dump files. Dumps are uploaded
// after pg_dump completes and can be pulled back before a restore.
type Bucket interface {
	Ping() error
	BucketId() string
	BucketType() BucketType
	GetDstDir() string
	UploadFile(path, objectName string) error
	DownloadFile(objectName, localFile string) error
	ListDumps() ([]string, error)
	Remove(objectName string) error
}

// Settings carries the [archive] table from config.toml. Only the fields
// for the selected backend type are used.
type Settings struct {
	Type        BucketType `json:"type"`
	Endpoint    string     `json:"endpoint"`
	Region      string     `json:"region"`
	AccessKey   string     `json:"accessKey"`
	SecretKey   string     `json:"secretKey"`
	Bucket      string     `json:"bucket"`
	DstDir      string     `json:"dstDir"`
	AccountName string     `json:"accountName"`
	AccountKey  string     `json:"accountKey"`
	KeyJson     string     `json:"-"`
	ProjectId   string     `json:"projectId"`
}

// NewBucket builds the backend for the configured archive type.
func NewBucket(s *Settings) (Bucket, error) {
	switch s.Type {
	case MinioBucketType:
		return NewMinioBucket(s.Endpoint, s.Region, s.AccessKey, s.SecretKey, s.Bucket, s.DstDir), nil
	case AwsBucketType:
		if s.AccessKey == "" && s.SecretKey == "" {
			return NewAwsIamBucket(s.Region, s.Bucket, s.DstDir), nil
		}
		return NewAwsBucket(s.Region, s.AccessKey, s.SecretKey, s.Bucket, s.DstDir), nil
	case AzureBucketType:
		return NewAzureBucket(s.AccountName, s.AccountKey, s.Bucket, s.DstDir), nil
	case GcpBucketType:
		return NewGcpBucket(s.KeyJson, s.ProjectId, s.Bucket, s.DstDir), nil
	}
	err := &UnsupportedBucketError{Type: string(s.Type)}
	log.Error(err)
	return nil, err
}

func getBucketId(bucketType BucketType, endpoint, bucket string) string {
	return fmt.Sprintf("%s-%s-%s", bucketType, endpoint, bucket)
}

func getDestinationDir(dstDir string) string {
	if dstDir == "" {
		return "postgres-manager-dumps"
	}
	return dstDir
}
