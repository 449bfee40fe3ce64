package config

import (
	"github.com/Jakub-Wilk/postgres-manager/pkg/archive"
	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
)

func validateConnection(name string, conn *pg.Connection) error {
	if conn.DbName == "" {
		return &RequiredKeyIsMissing{Key: "dbname", ObjectName: name}
	}
	if conn.Password == "" {
		return &RequiredKeyIsMissing{Key: "password", ObjectName: name}
	}
	return nil
}

func validateArchive(s *archive.Settings) error {
	switch s.Type {
	case archive.MinioBucketType, archive.AwsBucketType:
		if s.Bucket == "" {
			return &RequiredKeyIsMissing{Key: "bucket", ObjectName: "archive"}
		}
		if s.Type == archive.MinioBucketType && s.Endpoint == "" {
			return &RequiredKeyIsMissing{Key: "endpoint", ObjectName: "archive"}
		}
	case archive.AzureBucketType:
		if s.AccountName == "" {
			return &RequiredKeyIsMissing{Key: "account_name", ObjectName: "archive"}
		}
		if s.AccountKey == "" {
			return &RequiredKeyIsMissing{Key: "account_key", ObjectName: "archive"}
		}
		if s.Bucket == "" {
			return &RequiredKeyIsMissing{Key: "bucket", ObjectName: "archive"}
		}
	case archive.GcpBucketType:
		if s.KeyJson == "" {
			return &RequiredKeyIsMissing{Key: "key_json", ObjectName: "archive"}
		}
		if s.Bucket == "" {
			return &RequiredKeyIsMissing{Key: "bucket", ObjectName: "archive"}
		}
	default:
		return &archive.UnsupportedBucketError{Type: string(s.Type)}
	}
	return nil
}
