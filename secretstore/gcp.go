package secretstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	secretmanager "google.golang.org/api/secretmanager/v1"
)

func init() {
	Register(Backend{
		Type:           "gcp-secretmanager",
		Description:    "Google Cloud Secret Manager",
		Factory:        newGCPSecretManager,
		RequiredFields: []string{"project"},
		OptionalFields: []string{"credentials_file"},
	})
}

type gcpSecretManager struct {
	svc       *secretmanager.Service
	projectID string
}

func newGCPSecretManager(cfg BackendConfig) (Store, error) {
	project, err := cfg.requireExtra("project")
	if err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if credFile := cfg.extraString("credentials_file"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	svc, err := secretmanager.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcp secret manager: %w", err)
	}
	return &gcpSecretManager{svc: svc, projectID: project}, nil
}

// gcpSecretID maps a qualified name onto the secret ID alphabet, which has
// no slashes.
func gcpSecretID(name string) string {
	return strings.ReplaceAll(strings.Trim(name, "/"), "/", "_")
}

func (s *gcpSecretManager) resource(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, gcpSecretID(name))
}

func isGoogleNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func (s *gcpSecretManager) Get(ctx context.Context, name string) (string, error) {
	version := s.resource(name) + "/versions/latest"
	resp, err := s.svc.Projects.Secrets.Versions.Access(version).Context(ctx).Do()
	if err != nil {
		if isGoogleNotFound(err) {
			return "", fmt.Errorf("gcp secret %s: %w", version, ErrNotFound)
		}
		return "", fmt.Errorf("gcp secret get %s: %w", version, err)
	}
	if resp.Payload == nil || resp.Payload.Data == "" {
		return "", fmt.Errorf("gcp secret %s has no data", version)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("decode gcp secret %s: %w", version, err)
	}
	return string(data), nil
}

func (s *gcpSecretManager) Put(ctx context.Context, name, value string) error {
	resource := s.resource(name)
	if _, err := s.svc.Projects.Secrets.Get(resource).Context(ctx).Do(); err != nil {
		if !isGoogleNotFound(err) {
			return fmt.Errorf("gcp secret lookup %s: %w", resource, err)
		}
		parent := fmt.Sprintf("projects/%s", s.projectID)
		_, err := s.svc.Projects.Secrets.Create(parent, &secretmanager.Secret{
			Replication: &secretmanager.Replication{Automatic: &secretmanager.Automatic{}},
		}).SecretId(gcpSecretID(name)).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("gcp secret create %s: %w", resource, err)
		}
	}
	_, err := s.svc.Projects.Secrets.AddVersion(resource, &secretmanager.AddSecretVersionRequest{
		Payload: &secretmanager.SecretPayload{
			Data: base64.StdEncoding.EncodeToString([]byte(value)),
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcp secret add version %s: %w", resource, err)
	}
	return nil
}
