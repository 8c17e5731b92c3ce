package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

// LoadAWSConfig loads credentials from the default chain. Outside Kubernetes the
// shared config profile (AWS_PROFILE or "default") is used.
func LoadAWSConfig(ctx context.Context, regionOverride string) (aws.Config, error) {
	var options []func(*config.LoadOptions) error

	if !isInKubernetes() {
		options = append(options, config.WithSharedConfigProfile(getProfile()))
	}

	if regionOverride != "" {
		options = append(options, config.WithRegion(regionOverride))
	}

	return config.LoadDefaultConfig(ctx, options...)
}

func isInKubernetes() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token")
	return err == nil
}

func getProfile() string {
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

// LogCallerIdentity logs which AWS principal artifacts will be published as
func LogCallerIdentity(ctx context.Context, cfg aws.Config, logger *zap.Logger) error {
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to get AWS caller identity: %w", err)
	}
	logger.Sugar().Infow("Using AWS identity",
		"account", aws.ToString(identity.Account),
		"arn", aws.ToString(identity.Arn),
		"region", cfg.Region,
	)
	return nil
}
