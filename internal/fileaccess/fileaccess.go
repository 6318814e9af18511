// Package fileaccess abstracts where pipeline products are written and where
// auxiliary objects are read from, so the same code can target a local
// directory or an S3 bucket.
package fileaccess

import (
	"fmt"
	"path"
	"strings"
)

// FileAccess reads and writes whole objects. root is a directory for the
// local implementation and a bucket name for S3.
type FileAccess interface {
	ListObjects(root string, prefix string) ([]string, error)

	ReadObject(root string, path string) ([]byte, error)
	WriteObject(root string, path string, data []byte) error

	ReadJSON(root string, path string, itemsPtr interface{}, emptyIfNotFound bool) error
	WriteJSON(root string, path string, itemsPtr interface{}) error

	DeleteObject(root string, path string) error

	IsNotFoundError(err error) bool
}

// Location is a parsed output target: Root is the directory or bucket and
// Prefix the key prefix objects are written under.
type Location struct {
	Root   string
	Prefix string
	S3     bool
}

// Key joins name onto the location's prefix.
func (l Location) Key(name string) string {
	if l.Prefix == "" {
		return name
	}
	return path.Join(l.Prefix, name)
}

func (l Location) String() string {
	if l.S3 {
		return "s3://" + path.Join(l.Root, l.Prefix)
	}
	return path.Join(l.Root, l.Prefix)
}

// ParseLocation accepts either a local directory or an s3://bucket/prefix
// URL.
func ParseLocation(target string) (Location, error) {
	if target == "" {
		return Location{}, fmt.Errorf("empty output location")
	}
	if !strings.HasPrefix(target, "s3://") {
		return Location{Root: target}, nil
	}
	bucket, err := GetBucketFromS3Url(target)
	if err != nil {
		return Location{}, err
	}
	trimmed := strings.TrimPrefix(target, "s3://")
	prefix := strings.Trim(strings.TrimPrefix(trimmed, bucket), "/")
	return Location{Root: bucket, Prefix: prefix, S3: true}, nil
}

// GetBucketFromS3Url returns the bucket part of an s3:// URL.
func GetBucketFromS3Url(url string) (string, error) {
	trimmed := strings.TrimPrefix(url, "s3://")
	if trimmed == url {
		return "", fmt.Errorf("not an S3 url: %v", url)
	}
	bucket, _, _ := strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", fmt.Errorf("no bucket in S3 url: %v", url)
	}
	return bucket, nil
}

// MakeValidObjectName strips characters that cause trouble in object keys
// and on local filesystems.
func MakeValidObjectName(name string) string {
	name = strings.NewReplacer("?", "", "$", "", "#", "", "!", "", "'", "", "\"", "").Replace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}
