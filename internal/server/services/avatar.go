package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	sc "github.com/Chanzhaoyu/nest-blog-api/internal/server/config"
)

const avatarUploadValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// AvatarUpload is a one-shot upload slot for a profile picture.
type AvatarUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	AvatarURL string    `json:"avatarUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AvatarStorage interface {
	PresignAvatarUpload(ctx context.Context, userID string) (*AvatarUpload, error)
}

// S3AvatarStorage presigns PUT requests against an S3 compatible bucket.
type S3AvatarStorage struct {
	config *sc.Config
}

func NewS3AvatarStorage(config *sc.Config) *S3AvatarStorage {
	return &S3AvatarStorage{config: config}
}

func AvatarKey(userID string) string {
	return fmt.Sprintf("avatars/%s/%v", userID, uuid.New())
}

func (s *S3AvatarStorage) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// ObjectURL is the path-style address the avatar is served from.
func (s *S3AvatarStorage) ObjectURL(key string) string {
	return strings.TrimRight(s.config.S3BaseEndpoint, "/") + "/" + s.config.S3Bucket + "/" + key
}

func (s *S3AvatarStorage) PresignAvatarUpload(ctx context.Context, userID string) (*AvatarUpload, error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	key := AvatarKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(avatarUploadValidity))
	if err != nil {
		return nil, err
	}

	return &AvatarUpload{
		Key:       key,
		UploadURL: req.URL,
		AvatarURL: s.ObjectURL(key),
		ExpiresAt: time.Now().Add(avatarUploadValidity),
	}, nil
}
