package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/spf13/viper"
)

const (
	mib = 1 << 20
	gib = 1 << 30
)

type Config struct {
	AWS          AWSConfig          `mapstructure:"aws"`
	Notification NotificationConfig `mapstructure:"notification"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Output       OutputConfig       `mapstructure:"output"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Report       ReportConfig       `mapstructure:"report"`
	Log          LogConfig          `mapstructure:"log"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // LocalStack and friends
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	SessionToken    string `mapstructure:"session_token"`
	Profile         string `mapstructure:"profile"`
	CredentialsFile string `mapstructure:"credentials_file"` // accessKey/secretKey properties file
	AccountID       string `mapstructure:"account_id"`
}

// NotificationConfig names the per-action SNS topic and SQS queue.
type NotificationConfig struct {
	TopicPrefix     string        `mapstructure:"topic_prefix"`
	QueuePrefix     string        `mapstructure:"queue_prefix"`
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout"`
}

type UploadConfig struct {
	PartSize           int64 `mapstructure:"part_size"`
	MultipartThreshold int64 `mapstructure:"multipart_threshold"`
	Concurrency        int   `mapstructure:"concurrency"`
}

// RetrievalConfig bounds the retrieval job wait and output fetch.
type RetrievalConfig struct {
	ReceiveWait        time.Duration `mapstructure:"receive_wait"`
	NotificationBudget time.Duration `mapstructure:"notification_budget"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	HardTimeout        time.Duration `mapstructure:"hard_timeout"`
	ChunkSize          int64         `mapstructure:"chunk_size"`
	WorkDir            string        `mapstructure:"work_dir"`
	Tier               string        `mapstructure:"tier"`
	OnConflict         string        `mapstructure:"on_conflict"` // "overwrite" or "fail"
}

// OutputConfig configures s3:// destinations.
type OutputConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// ReportConfig configures where batch reports are posted.
type ReportConfig struct {
	WebhookURL string            `mapstructure:"webhook_url"`
	Headers    map[string]string `mapstructure:"headers"`
}

type LogConfig struct {
	Debug    bool   `mapstructure:"debug"`
	Encoding string `mapstructure:"encoding"` // "console" or "json"
}

// Conflict policies for retrieval destinations.
const (
	OnConflictOverwrite = "overwrite"
	OnConflictFail      = "fail"
)

var tiers = map[string]bool{"Standard": true, "Bulk": true, "Expedited": true}

// Load reads configuration from file, layered over Defaults. GLACIER_*
// environment variables override both; with an empty path only defaults and
// environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("glacier")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	// Every key needs a default for AutomaticEnv to reach it on Unmarshal.
	v.SetDefault("aws.region", d.AWS.Region)
	v.SetDefault("aws.endpoint", d.AWS.Endpoint)
	v.SetDefault("aws.access_key", d.AWS.AccessKey)
	v.SetDefault("aws.secret_key", d.AWS.SecretKey)
	v.SetDefault("aws.session_token", d.AWS.SessionToken)
	v.SetDefault("aws.profile", d.AWS.Profile)
	v.SetDefault("aws.credentials_file", d.AWS.CredentialsFile)
	v.SetDefault("aws.account_id", d.AWS.AccountID)
	v.SetDefault("notification.topic_prefix", d.Notification.TopicPrefix)
	v.SetDefault("notification.queue_prefix", d.Notification.QueuePrefix)
	v.SetDefault("notification.teardown_timeout", d.Notification.TeardownTimeout)
	v.SetDefault("upload.part_size", d.Upload.PartSize)
	v.SetDefault("upload.multipart_threshold", d.Upload.MultipartThreshold)
	v.SetDefault("upload.concurrency", d.Upload.Concurrency)
	v.SetDefault("retrieval.receive_wait", d.Retrieval.ReceiveWait)
	v.SetDefault("retrieval.notification_budget", d.Retrieval.NotificationBudget)
	v.SetDefault("retrieval.poll_interval", d.Retrieval.PollInterval)
	v.SetDefault("retrieval.hard_timeout", d.Retrieval.HardTimeout)
	v.SetDefault("retrieval.chunk_size", d.Retrieval.ChunkSize)
	v.SetDefault("retrieval.tier", d.Retrieval.Tier)
	v.SetDefault("retrieval.on_conflict", d.Retrieval.OnConflict)
	v.SetDefault("retrieval.work_dir", d.Retrieval.WorkDir)
	v.SetDefault("output.s3.region", d.Output.S3.Region)
	v.SetDefault("output.s3.endpoint", d.Output.S3.Endpoint)
	v.SetDefault("output.s3.access_key", d.Output.S3.AccessKey)
	v.SetDefault("output.s3.secret_key", d.Output.S3.SecretKey)
	v.SetDefault("output.s3.prefix", d.Output.S3.Prefix)
	v.SetDefault("metrics.textfile_path", d.Metrics.TextfilePath)
	v.SetDefault("report.webhook_url", d.Report.WebhookURL)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.encoding", d.Log.Encoding)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		AWS: AWSConfig{
			Region:          "us-east-1",
			CredentialsFile: "~/AwsCredentials.properties",
			AccountID:       "-",
		},
		Notification: NotificationConfig{
			TopicPrefix:     "glacier",
			QueuePrefix:     "glacier",
			TeardownTimeout: 30 * time.Second,
		},
		Upload: UploadConfig{
			PartSize:           8 * mib,
			MultipartThreshold: 100 * mib,
			Concurrency:        1,
		},
		Retrieval: RetrievalConfig{
			ReceiveWait:        20 * time.Second,
			NotificationBudget: 6 * time.Hour,
			PollInterval:       15 * time.Minute,
			HardTimeout:        12 * time.Hour,
			ChunkSize:          64 * mib,
			Tier:               "Standard",
			OnConflict:         OnConflictOverwrite,
		},
		Log: LogConfig{
			Encoding: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("aws.region is required"))
	}
	if (c.AWS.AccessKey == "") != (c.AWS.SecretKey == "") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("aws.access_key and aws.secret_key must be set together"))
	}

	if c.Notification.TopicPrefix == "" || c.Notification.QueuePrefix == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("notification topic_prefix and queue_prefix are required"))
	}

	// Glacier part sizes are a power-of-two number of MiB, 1 MiB to 4 GiB.
	ps := c.Upload.PartSize
	if ps < mib || ps > 4*gib || ps%mib != 0 || (ps/mib)&(ps/mib-1) != 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("upload.part_size must be a power-of-two MiB between 1 MiB and 4 GiB, got %d", ps))
	}
	if c.Upload.MultipartThreshold <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("upload.multipart_threshold must be positive, got %d", c.Upload.MultipartThreshold))
	}
	if c.Upload.Concurrency < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("upload.concurrency must be at least 1, got %d", c.Upload.Concurrency))
	}

	r := c.Retrieval
	// SQS long polls in whole seconds; below one second it short-polls.
	if r.ReceiveWait < time.Second || r.ReceiveWait > 20*time.Second {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.receive_wait must be in [1s, 20s], got %s", r.ReceiveWait))
	}
	if r.PollInterval <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.poll_interval must be positive, got %s", r.PollInterval))
	}
	if r.NotificationBudget < 0 || r.HardTimeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval budgets must be positive"))
	}
	if r.NotificationBudget > r.HardTimeout {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.notification_budget %s exceeds hard_timeout %s", r.NotificationBudget, r.HardTimeout))
	}
	if r.ChunkSize < mib {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.chunk_size must be at least 1 MiB, got %d", r.ChunkSize))
	}
	if !tiers[r.Tier] {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.tier must be Standard, Bulk or Expedited, got %q", r.Tier))
	}
	if u := c.Report.WebhookURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("report.webhook_url must be an http(s) URL, got %q", u))
	}

	switch r.OnConflict {
	case OnConflictOverwrite, OnConflictFail:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retrieval.on_conflict must be overwrite or fail, got %q", r.OnConflict))
	}

	return nil
}
