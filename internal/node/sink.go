package node

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apistol78/traktor-sub009/internal/config"
	"github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/recorder"
)

// NewSink builds the recording sink the configuration asks for. It
// returns nil when recording is disabled. A bucket takes precedence over
// a directory.
func NewSink(cfg config.RecordingConfig) (recorder.Sink, error) {
	switch {
	case cfg.Bucket != "":
		return recorder.NewS3Sink(newS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
	case cfg.Dir != "":
		sink, err := recorder.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, errors.New("R302").Wrap(err)
		}
		return sink, nil
	default:
		return nil, nil
	}
}

func newS3Client(cfg config.RecordingConfig) *s3.Client {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.AccessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			Source:          "replicad",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}
