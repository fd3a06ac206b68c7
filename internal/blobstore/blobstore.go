// Package blobstore wraps MinIO as the backing store for the
// `bytes_ref` an uploaded file's job payload carries (spec.md §3 Job,
// §6 FilePayload), generalizing go-inference-service's MinIOService from
// a single hardcoded bucket into a configured, reusable client.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
)

// Store wraps a MinIO client bound to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New builds a Store and ensures its bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.FatalDatabase, "create blob client", err)
	}

	s := &Store{client: client, bucket: bucket, logger: logger}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "check blob bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "create blob bucket", err)
	}
	s.logger.Info("created blob bucket", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads content under a path derived from sessionID and filename,
// returning the object key stored as the job's `bytes_ref`.
func (s *Store) Put(ctx context.Context, sessionID, filename string, content io.Reader, size int64, contentType string) (string, error) {
	objectKey := fmt.Sprintf("%s/%d_%s", sessionID, time.Now().Unix(), filename)
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, content, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamUnavailable, "upload blob", err)
	}
	return objectKey, nil
}

// Get opens a reader over the object at bytesRef; the caller must Close it.
func (s *Store) Get(ctx context.Context, bytesRef string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, bytesRef, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "fetch blob", err)
	}
	return obj, nil
}

// Delete removes the object at bytesRef, cascading the admin-initiated
// document delete down to its uploaded bytes.
func (s *Store) Delete(ctx context.Context, bytesRef string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, bytesRef, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "delete blob", err)
	}
	return nil
}
