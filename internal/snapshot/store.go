package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Store archives snapshot documents in an S3-compatible bucket
// (Cloudflare R2 in the default deployment).
type Store struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
}

// NewStore configures a Store from environment variables. It returns
// (nil, nil) when the variables are not fully set, so snapshot archiving
// is optional.
func NewStore(ctx context.Context) (*Store, error) {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	bucketName := os.Getenv("R2_BUCKET_NAME")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("R2_SECRET_ACCESS_KEY")
	publicURL := os.Getenv("R2_PUBLIC_URL")

	if accountID == "" || bucketName == "" || accessKeyID == "" || secretAccessKey == "" || publicURL == "" {
		log.Println("WARN: R2 environment variables not fully configured (CLOUDFLARE_ACCOUNT_ID, R2_BUCKET_NAME, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_PUBLIC_URL). Snapshot archiving disabled.")
		return nil, nil
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}

	log.Printf("INFO: snapshot store initialized for bucket '%s'", bucketName)
	return &Store{
		s3Client:   s3.NewFromConfig(cfg),
		bucketName: bucketName,
		publicURL:  publicURL,
	}, nil
}

// Upload archives one snapshot document under snapshots/<runID>/<uuid>.json
// and returns its public URL.
func (s *Store) Upload(ctx context.Context, runID uuid.UUID, data []byte) (string, error) {
	if s == nil || s.s3Client == nil {
		return "", fmt.Errorf("snapshot store not configured")
	}

	objectKey := fmt.Sprintf("snapshots/%s/%s.json", runID, uuid.New())
	contentType := "application/json"

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot %s: %w", objectKey, err)
	}

	base, err := url.Parse(s.publicURL)
	if err != nil {
		return "", fmt.Errorf("invalid R2_PUBLIC_URL: %w", err)
	}
	base.Path = path.Join(base.Path, objectKey)

	log.Printf("INFO: snapshot for run %s archived at %s", runID, base.String())
	return base.String(), nil
}

// Fetch downloads a previously archived snapshot document.
func (s *Store) Fetch(ctx context.Context, objectKey string) ([]byte, error) {
	if s == nil || s.s3Client == nil {
		return nil, fmt.Errorf("snapshot store not configured")
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
