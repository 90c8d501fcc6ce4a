package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

func init() {
	Register(Backend{
		Type:           "aws-secretsmanager",
		Description:    "AWS Secrets Manager",
		Factory:        newAWSSecretsManager,
		RequiredFields: []string{"region"},
		OptionalFields: []string{"profile"},
	})
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

type awsSecretsManager struct {
	newAPI func(ctx context.Context) (secretsManagerAPI, error)
}

func newAWSSecretsManager(cfg BackendConfig) (Store, error) {
	if cfg.Region == "" {
		return nil, errors.New("aws-secretsmanager backend missing region")
	}
	return &awsSecretsManager{
		newAPI: func(ctx context.Context) (secretsManagerAPI, error) {
			awsCfg, err := loadAWSConfig(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return secretsmanager.NewFromConfig(awsCfg), nil
		},
	}, nil
}

func (s *awsSecretsManager) Get(ctx context.Context, name string) (string, error) {
	client, err := s.newAPI(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("aws secrets %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("aws secrets get %s: %w", name, err)
	}
	if out.SecretString != nil {
		return aws.ToString(out.SecretString), nil
	}
	if out.SecretBinary != nil {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("aws secret %s has no value", name)
}

// Put adds a new version to an existing secret and creates the secret when it
// does not exist yet.
func (s *awsSecretsManager) Put(ctx context.Context, name, value string) error {
	client, err := s.newAPI(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	var notFound *smtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("aws secrets put %s: %w", name, err)
	}
	if _, err := client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
		Description:  aws.String("Credential removed from source history by keyscrub"),
	}); err != nil {
		return fmt.Errorf("aws secrets create %s: %w", name, err)
	}
	return nil
}
