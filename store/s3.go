package store

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/metrico/tierflow/model"
)

type S3Config struct {
	URL    string
	Key    string
	Secret string
	Bucket string
	Region string
	Path   string
	Secure bool
}

var _ Writer = &S3Writer{}

// S3Writer uploads every written table as a standalone parquet object under
// bucket/path/<file>/<table path>.parquet.
type S3Writer struct {
	conf   S3Config
	client *minio.Client
	tmpDir string
}

func NewS3Writer(conf S3Config) (*S3Writer, error) {
	minioClient, err := minio.New(conf.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.Key, conf.Secret, ""),
		Secure: conf.Secure,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Writer{conf: conf, client: minioClient, tmpDir: os.TempDir()}, nil
}

func (s *S3Writer) ObjectKey(p, file string) string {
	return path.Join(s.conf.Path, file, p+parquetExt)
}

func (s *S3Writer) Write(ctx context.Context, obj *model.Table, p, file string, mode WriteMode) error {
	if mode == Append {
		return fmt.Errorf("%w: append to s3 object %s", ErrUnsupported, s.ObjectKey(p, file))
	}
	uid, err := uuid.NewUUID()
	if err != nil {
		return err
	}
	tmpFileName := path.Join(s.tmpDir, uid.String()+parquetExt)
	err = saveTmpFile(tmpFileName, obj, 8124)
	defer os.Remove(tmpFileName)
	if err != nil {
		return err
	}
	return s.uploadToS3(ctx, tmpFileName, s.ObjectKey(p, file))
}

func (s *S3Writer) uploadToS3(ctx context.Context, filePath, s3Key string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.conf.Bucket, s3Key, file, fileInfo.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}
