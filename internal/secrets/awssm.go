package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
)

const secretsManagerBackend = "AWS Secrets Manager"

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerResolver resolves awssm:// references:
//
//	awssm:///name               secret string, default region
//	awssm://us-west-2/name      secret string, explicit region
//	awssm://us-west-2/name#key  one key of a JSON secret
type SecretsManagerResolver struct {
	// NewClient builds a client for region ("" means the SDK default).
	// Nil uses the default AWS config chain.
	NewClient func(ctx context.Context, region string) (SecretsManagerAPI, error)
}

// Scheme returns "awssm".
func (r *SecretsManagerResolver) Scheme() string {
	return "awssm"
}

// Resolve fetches the current version of the referenced secret.
func (r *SecretsManagerResolver) Resolve(ctx context.Context, reference string) (string, error) {
	region, secretID, jsonKey, err := parseSecretsManagerReference(reference)
	if err != nil {
		return "", err
	}

	newClient := r.NewClient
	if newClient == nil {
		newClient = defaultSecretsManagerClient
	}
	client, err := newClient(ctx, region)
	if err != nil {
		return "", &BackendError{
			Backend:   secretsManagerBackend,
			Reference: reference,
			Reason:    "loading AWS configuration failed",
			Fix:       "Configure credentials with: aws configure (or aws sso login)",
			Err:       err,
		}
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", secretsManagerError(err, reference, secretID)
	}
	if out.SecretString == nil {
		return "", &BackendError{
			Backend:   secretsManagerBackend,
			Reference: reference,
			Reason:    "secret has no string value (binary secrets are not supported)",
		}
	}

	value := *out.SecretString
	if jsonKey == "" {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", &InvalidReferenceError{Reference: reference, Reason: "secret is not a JSON object, remove the #key suffix"}
	}
	v, ok := fields[jsonKey]
	if !ok {
		return "", &NotFoundError{Reference: reference, Backend: secretsManagerBackend}
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func defaultSecretsManagerClient(ctx context.Context, region string) (SecretsManagerAPI, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

func parseSecretsManagerReference(ref string) (region, secretID, jsonKey string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "awssm" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "expected awssm://[region]/secret-id[#key]"}
	}
	secretID = strings.TrimPrefix(u.Path, "/")
	if secretID == "" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "missing secret id"}
	}
	return u.Host, secretID, u.Fragment, nil
}

func secretsManagerError(err error, reference, secretID string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return &NotFoundError{Reference: reference, Backend: secretsManagerBackend}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException":
			return &BackendError{
				Backend:   secretsManagerBackend,
				Reference: reference,
				Reason:    "access denied",
				Fix:       "Grant secretsmanager:GetSecretValue on " + secretID,
				Err:       err,
			}
		case "ExpiredTokenException", "ExpiredToken":
			return &BackendError{
				Backend:   secretsManagerBackend,
				Reference: reference,
				Reason:    "AWS credentials expired",
				Fix:       "Run: aws sso login",
				Err:       err,
			}
		}
	}

	return &BackendError{
		Backend:   secretsManagerBackend,
		Reference: reference,
		Reason:    err.Error(),
		Err:       err,
	}
}

func init() {
	Register(&SecretsManagerResolver{})
}
