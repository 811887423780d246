package gcp

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	"github.com/andywolf/spiralsync/internal/anchor"
)

// accessFunc reads the payload of a fully qualified secret version.
type accessFunc func(ctx context.Context, name string) ([]byte, error)

// SecretManagerClient wraps the GCP Secret Manager client. It satisfies
// anchor.SecretFetcher so the identity anchor can be kept out of config files.
type SecretManagerClient struct {
	access    accessFunc
	closeFn   func() error
	projectID string
}

// NewSecretManagerClient creates a new Secret Manager client. An empty
// projectID is resolved with ProjectID.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	if projectID == "" {
		var err error
		projectID, err = ProjectID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	access := func(ctx context.Context, name string) ([]byte, error) {
		result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		return result.GetPayload().GetData(), nil
	}

	return &SecretManagerClient{
		access:    access,
		closeFn:   client.Close,
		projectID: projectID,
	}, nil
}

// FetchSecret retrieves a secret from GCP Secret Manager
// secretPath can be in one of the following formats:
// - projects/PROJECT_ID/secrets/SECRET_NAME/versions/VERSION
// - projects/PROJECT_ID/secrets/SECRET_NAME (defaults to latest)
// - SECRET_NAME (uses the client's project)
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	// Add timeout to prevent hanging if the API is slow
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if c.access == nil {
		return "", fmt.Errorf("secret manager client is not initialized")
	}

	data, err := c.access(ctx, c.normalizeSecretPath(secretPath))
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(data), nil
}

// normalizeSecretPath ensures the secret path is in the correct format
// If the path is just a secret name, it constructs the full path with "latest" version
func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	// If it's already a full path with version, return as-is
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}

	// If it's a full path without version, append /versions/latest
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}

	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretName)
}

// Close closes the Secret Manager client
func (c *SecretManagerClient) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

var _ anchor.SecretFetcher = (*SecretManagerClient)(nil)
