package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"histosync/internal/fileutil"
	"histosync/internal/logging"
	"histosync/internal/services"
)

// ObjectStoreOptions configures the S3-compatible transport.
type ObjectStoreOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	Logger    *slog.Logger
}

// ObjectStore is a Transport over an S3-compatible bucket. Remote directories
// are key prefixes.
type ObjectStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewObjectStore constructs the client. No request is made until first use.
func NewObjectStore(opts ObjectStoreOptions) (*ObjectStore, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "open", "bucket is required", nil)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseTLS,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "open", opts.Endpoint, err)
	}
	return &ObjectStore{
		client: client,
		bucket: opts.Bucket,
		logger: logging.NewComponentLogger(opts.Logger, "s3"),
	}, nil
}

// List implements Transport.
func (s *ObjectStore) List(ctx context.Context, dir string) ([]string, error) {
	prefix := objectPrefix(dir)
	var raw []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, classifyObjectError("list", dir, obj.Err)
		}
		raw = append(raw, obj.Key)
	}
	return filterNames(raw), nil
}

// Fetch implements Transport.
func (s *ObjectStore) Fetch(ctx context.Context, remotePath, localPath string) error {
	key := objectKey(remotePath)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return classifyObjectError("fetch", remotePath, err)
	}
	defer obj.Close()

	if _, err := fileutil.WritePartial(localPath, obj, false); err != nil {
		return classifyObjectError("fetch", remotePath, err)
	}
	return fileutil.Commit(fileutil.PartPath(localPath), localPath)
}

// Put implements Transport. The object is uploaded under a ".part" key and
// copied server side to its final key, so readers never see a short object.
func (s *ObjectStore) Put(ctx context.Context, localPath, remotePath string) error {
	key := objectKey(remotePath)
	partKey := fileutil.PartPath(key)
	if _, err := s.client.FPutObject(ctx, s.bucket, partKey, localPath, minio.PutObjectOptions{}); err != nil {
		return classifyObjectError("put", remotePath, err)
	}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: key}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: partKey}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return classifyObjectError("put", remotePath, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, partKey, minio.RemoveObjectOptions{}); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove staged upload object", "s3_cleanup_failed",
			logging.String("key", partKey),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the .part object manually"),
			logging.String(logging.FieldImpact, "an orphaned .part object remains in the bucket"),
		)
	}
	return nil
}

// MakeDir ensures the bucket exists; prefixes need no creation.
func (s *ObjectStore) MakeDir(ctx context.Context, dir string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classifyObjectError("mkdir", dir, err)
	}
	if exists {
		s.logger.Debug("bucket already exists", logging.String("bucket", s.bucket))
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return classifyObjectError("mkdir", dir, err)
	}
	s.logger.Info("created bucket", logging.String("bucket", s.bucket))
	return nil
}

// Close is a no-op; the client holds no session.
func (s *ObjectStore) Close() error {
	return nil
}

func objectKey(remotePath string) string {
	return strings.TrimPrefix(path.Clean("/"+remotePath), "/")
}

func objectPrefix(dir string) string {
	key := objectKey(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

func classifyObjectError(op, target string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return services.Wrap(services.ErrNotFound, "s3", op, target, err)
	case "AccessDenied", "InvalidObjectName", "MethodNotAllowed":
		return services.Wrap(services.ErrRemoteState, "s3", op, target, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return services.Wrap(services.ErrConfiguration, "s3", op, fmt.Sprintf("credentials rejected for %s", target), err)
	}
	return services.Wrap(services.ErrTransient, "s3", op, target, err)
}
