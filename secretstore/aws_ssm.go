package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func init() {
	Register(Backend{
		Type:           "aws-ssm",
		Description:    "AWS Systems Manager Parameter Store",
		Factory:        newAWSSSM,
		RequiredFields: []string{"region"},
		OptionalFields: []string{"profile", "kms_key_id"},
	})
}

// ssmAPI is the subset of the SSM client the backend calls.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type awsSSM struct {
	kmsKeyID string
	newAPI   func(ctx context.Context) (ssmAPI, error)
}

func newAWSSSM(cfg BackendConfig) (Store, error) {
	if cfg.Region == "" {
		return nil, errors.New("aws-ssm backend missing region")
	}
	s := &awsSSM{kmsKeyID: cfg.extraString("kms_key_id")}
	s.newAPI = func(ctx context.Context) (ssmAPI, error) {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ssm.NewFromConfig(awsCfg), nil
	}
	return s, nil
}

func (s *awsSSM) Get(ctx context.Context, name string) (string, error) {
	client, err := s.newAPI(ctx)
	if err != nil {
		return "", err
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("aws ssm %s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("aws ssm get %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("aws ssm %s: %w", name, ErrNotFound)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (s *awsSSM) Put(ctx context.Context, name, value string) error {
	client, err := s.newAPI(ctx)
	if err != nil {
		return err
	}
	in := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if s.kmsKeyID != "" {
		in.KeyId = aws.String(s.kmsKeyID)
	}
	if _, err := client.PutParameter(ctx, in); err != nil {
		return fmt.Errorf("aws ssm put %s: %w", name, err)
	}
	return nil
}
