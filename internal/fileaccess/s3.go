package fileaccess

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Access implements FileAccess on an S3 bucket.
type S3Access struct {
	s3Api s3iface.S3API
}

// MakeS3Access wraps an S3 client.
func MakeS3Access(s3Api s3iface.S3API) S3Access {
	return S3Access{s3Api: s3Api}
}

// NewS3FromEnv builds an S3 client for the region in AWS_DEFAULT_REGION.
// Credentials come from the SDK's default chain.
func NewS3FromEnv() (S3Access, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(os.Getenv("AWS_DEFAULT_REGION"))})
	if err != nil {
		return S3Access{}, err
	}
	return MakeS3Access(s3.New(sess)), nil
}

// ListObjects follows continuation tokens until the listing is complete.
func (a S3Access) ListObjects(bucket string, prefix string) ([]string, error) {
	params := s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	result := []string{}
	for {
		listing, err := a.s3Api.ListObjectsV2(&params)
		if err != nil {
			return []string{}, err
		}
		for _, item := range listing.Contents {
			// Console-created "directories" are empty keys ending in a slash.
			if item.Key != nil && !strings.HasSuffix(*item.Key, "/") {
				result = append(result, *item.Key)
			}
		}
		if listing.IsTruncated == nil || !*listing.IsTruncated || listing.NextContinuationToken == nil {
			break
		}
		params.ContinuationToken = listing.NextContinuationToken
	}
	return result, nil
}

func (a S3Access) ReadObject(bucket string, p string) ([]byte, error) {
	out, err := a.s3Api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (a S3Access) WriteObject(bucket string, p string, data []byte) error {
	_, err := a.s3Api.PutObject(&s3.PutObjectInput{
		Body:   bytes.NewReader(data),
		Bucket: aws.String(bucket),
		Key:    aws.String(p),
	})
	return err
}

func (a S3Access) ReadJSON(bucket string, p string, itemsPtr interface{}, emptyIfNotFound bool) error {
	data, err := a.ReadObject(bucket, p)
	if err != nil {
		if emptyIfNotFound && a.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, itemsPtr)
}

func (a S3Access) WriteJSON(bucket string, p string, itemsPtr interface{}) error {
	data, err := json.MarshalIndent(itemsPtr, "", jsonIndent)
	if err != nil {
		return err
	}
	return a.WriteObject(bucket, p, data)
}

func (a S3Access) DeleteObject(bucket string, p string) error {
	_, err := a.s3Api.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(p),
	})
	return err
}

func (a S3Access) IsNotFoundError(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}
