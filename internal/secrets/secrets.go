// Package secrets resolves credentials the Agent Invoker's env-construction
// step needs (e.g. ANTHROPIC_API_KEY) without hardcoding one source. The
// default Resolver reads the process environment; SecretManagerResolver is
// an optional implementation for fleets centralizing credentials in GCP
// Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Resolver looks up a named secret.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, bool, error)
}

// EnvResolver reads secrets from the process environment. It is the
// default for deployments with no central secret store configured.
type EnvResolver struct{}

func (EnvResolver) Resolve(_ context.Context, name string) (string, bool, error) {
	v, ok := os.LookupEnv(name)
	return v, ok, nil
}

// SecretManagerResolver reads the latest version of a named secret from
// GCP Secret Manager, falling back to the environment variable of the same
// name when the Secret Manager lookup fails for any reason.
type SecretManagerResolver struct {
	client    *secretmanager.Client
	projectID string
	fallback  Resolver
}

// NewSecretManagerResolver dials Secret Manager for projectID. credsFile
// may be empty to use application-default credentials.
func NewSecretManagerResolver(ctx context.Context, projectID, credsFile string) (*SecretManagerResolver, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: dial secret manager: %w", err)
	}
	return &SecretManagerResolver{client: client, projectID: projectID, fallback: EnvResolver{}}, nil
}

// Resolve fetches the latest version of name from Secret Manager.
func (r *SecretManagerResolver) Resolve(ctx context.Context, name string) (string, bool, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", r.projectID, name),
	}
	resp, err := r.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return r.fallback.Resolve(ctx, name)
	}
	return string(resp.Payload.Data), true, nil
}

// Close releases the underlying client.
func (r *SecretManagerResolver) Close() error { return r.client.Close() }
