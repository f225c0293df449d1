// Package awsconf builds the AWS SDK configuration shared by the vault,
// notification and S3 clients.
package awsconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/newthinker/glacier/internal/config"
	"github.com/newthinker/glacier/internal/core"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Credential sources, in order of precedence.
const (
	SourceStatic     = "static"
	SourceProperties = "properties"
	SourceDefault    = "default-chain"
)

// Resolve loads an aws.Config for cfg and checks that credentials can be
// retrieved. Static keys win over the properties file, which wins over the
// SDK default chain. No usable credentials yields core.ErrCredentialsMissing.
func Resolve(ctx context.Context, cfg config.AWSConfig, logger *zap.Logger) (aws.Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	source := SourceDefault
	provider, err := explicitProvider(cfg, logger)
	if err != nil {
		return aws.Config{}, err
	}
	if provider != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(provider))
		source = SourceStatic
		if cfg.AccessKey == "" {
			source = SourceProperties
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("loading AWS config: %w", err))
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	if awsCfg.Credentials == nil {
		return aws.Config{}, core.Errorf(core.ErrCredentialsMissing, "no credential provider configured")
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return aws.Config{}, core.WrapError(core.ErrCredentialsMissing, err)
	}

	logger.Debug("AWS credentials resolved",
		zap.String("source", source),
		zap.String("region", awsCfg.Region),
	)
	return awsCfg, nil
}

// explicitProvider returns a static provider from configured keys or the
// properties file, or nil when neither applies.
func explicitProvider(cfg config.AWSConfig, logger *zap.Logger) (aws.CredentialsProvider, error) {
	if cfg.AccessKey != "" {
		return credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken), nil
	}
	if cfg.CredentialsFile == "" {
		return nil, nil
	}

	path, err := expandHome(cfg.CredentialsFile)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("no credentials properties file", zap.String("path", path))
		return nil, nil
	}

	access, secret, err := ReadProperties(path)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	if access == "" || secret == "" {
		logger.Warn("credentials properties file lacks accessKey or secretKey, ignoring", zap.String("path", path))
		return nil, nil
	}
	return credentials.NewStaticCredentialsProvider(access, secret, ""), nil
}

// ReadProperties reads accessKey and secretKey from a key=value file.
func ReadProperties(path string) (accessKey, secretKey string, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	// viper lower-cases keys
	return strings.TrimSpace(v.GetString("accesskey")), strings.TrimSpace(v.GetString("secretkey")), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
