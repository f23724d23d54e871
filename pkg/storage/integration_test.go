//go:build integration

package storage

import (
	"context"
	"io/fs"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

// TestS3Store_Integration uses Testcontainers to spin up LocalStack.
// This is a "Hermetic" test: it brings its own cloud.
// Requires Docker.
func TestS3Store_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start LocalStack")

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "")
	require.NoError(t, err)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     "test",
				SecretAccessKey: "test",
				SessionToken:    "test",
			}, nil
		})),
	)
	require.NoError(t, err, "failed to load SDK config")

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("http://" + endpoint)
		o.UsePathStyle = true
	})
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String("sbom-reports"),
	})
	require.NoError(t, err, "failed to create bucket")

	store := &S3Store{Client: client, Bucket: "sbom-reports", Prefix: "scans"}

	payload := []byte(`{"schema":"test"}`)
	require.NoError(t, store.Put(ctx, "xlin-sbom_demo.json", payload))

	got, err := store.Get(ctx, "xlin-sbom_demo.json")
	require.NoError(t, err)
	assert.Equal(t, payload, got, "round trip mismatch")

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"xlin-sbom_demo.json"}, keys, "listed keys should stay addressable by Get")

	_, err = store.Get(ctx, "absent.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, store.Delete(ctx, "xlin-sbom_demo.json"))
	_, err = store.Get(ctx, "xlin-sbom_demo.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
