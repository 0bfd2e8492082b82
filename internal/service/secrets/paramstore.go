// Package secrets resolves credentials from AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the slice of *ssm.Client the store needs.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamStore reads decrypted parameters.
type ParamStore struct {
	api ssmAPI
}

// New wraps an SSM API implementation.
func New(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// NewFromEnvironment builds a ParamStore from the default AWS credential
// chain (environment, shared config, instance role).
func NewFromEnvironment(ctx context.Context) (*ParamStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return New(ssm.NewFromConfig(cfg))
}

// GetParameter returns the decrypted value of the named parameter.
func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	if p == nil || p.api == nil {
		return "", errors.New("secrets: store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: parameter name is required")
	}

	withDecryption := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}
