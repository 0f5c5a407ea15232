package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.New("invalid duration")
	}
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	var err error
	d.Duration, err = time.ParseDuration(value.Value)
	return err
}

type Configuration struct {
	FetchInterval   Duration        `json:"fetchInterval" yaml:"fetchInterval"`
	BatchSize       int             `json:"batchSize" yaml:"batchSize" validate:"gte=1"`
	MaxPayloadSize  int64           `json:"maxPayloadSize" yaml:"maxPayloadSize" validate:"gte=0"`
	DeleteProcessed bool            `json:"deleteProcessed" yaml:"deleteProcessed"`
	ImapConfig      IMAPConfig      `json:"imap" yaml:"imap"`
	Archive         ArchiveConfig   `json:"archive" yaml:"archive"`
	Analytics       AnalyticsConfig `json:"analytics" yaml:"analytics"`
	Metrics         MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type IMAPConfig struct {
	Host       string   `json:"host" yaml:"host" validate:"omitempty,hostname_port"`
	SSL        bool     `json:"ssl" yaml:"ssl"`
	User       string   `json:"user" yaml:"user" validate:"required_with=Host"`
	Pass       string   `json:"pass" yaml:"pass"`
	Folder     string   `json:"folder" yaml:"folder" validate:"required_with=Host"`
	IgnoreCert bool     `json:"ignoreCert" yaml:"ignoreCert"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
}

// ArchiveConfig selects where raw attachments are stored. The s3 store also
// works with S3 compatible services like R2 or minio by setting Endpoint.
type ArchiveConfig struct {
	Type            string `json:"type" yaml:"type" validate:"oneof=none s3 filesystem"`
	Bucket          string `json:"bucket" yaml:"bucket" validate:"required_if=Type s3"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `json:"accessKeyID" yaml:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey" validate:"required_with=AccessKeyID"`
	UsePathStyle    bool   `json:"usePathStyle" yaml:"usePathStyle"`
	Directory       string `json:"directory" yaml:"directory" validate:"required_if=Type filesystem"`
}

type AnalyticsConfig struct {
	Type           string `json:"type" yaml:"type" validate:"oneof=none syslog log"`
	SyslogServer   string `json:"syslogServer" yaml:"syslogServer" validate:"required_if=Type syslog"`
	SyslogProtocol string `json:"syslogProtocol" yaml:"syslogProtocol" validate:"oneof=tcp udp"`
	SyslogTag      string `json:"syslogTag" yaml:"syslogTag"`
}

type MetricsConfig struct {
	// Listen enables the /metrics endpoint when set
	Listen string `json:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// secrets that can be supplied through the environment instead of the file
const (
	envIMAPPass               = "DMARC_IMAP_PASS"
	envArchiveAccessKeyID     = "DMARC_ARCHIVE_ACCESS_KEY_ID"
	envArchiveSecretAccessKey = "DMARC_ARCHIVE_SECRET_ACCESS_KEY"
)

var validate = validator.New()

func Defaults() Configuration {
	return Configuration{
		FetchInterval: Duration{
			Duration: 1 * time.Hour,
		},
		BatchSize:       30,
		DeleteProcessed: true,
		ImapConfig: IMAPConfig{
			Folder: "INBOX",
			Timeout: Duration{
				Duration: 1 * time.Minute,
			},
		},
		Archive: ArchiveConfig{
			Type: "none",
		},
		Analytics: AnalyticsConfig{
			Type:           "none",
			SyslogProtocol: "tcp",
			SyslogTag:      "dmarc",
		},
	}
}

// GetConfig decodes the file f over defaults. Files ending in .yaml or .yml
// are read as yaml, everything else as json.
func GetConfig(defaults Configuration, f string) (*Configuration, error) {
	if f == "" {
		return nil, fmt.Errorf("please provide a valid config file")
	}

	b, err := os.ReadFile(f) // nolint: gosec
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(f)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		if err = decoder.Decode(&defaults); err != nil {
			return nil, fmt.Errorf("could not decode yaml: %w", err)
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(b))
		if err = decoder.Decode(&defaults); err != nil {
			return nil, fmt.Errorf("could not decode json: %w", err)
		}
	}

	defaults.applyEnv()

	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	return &defaults, nil
}

func (c *Configuration) applyEnv() {
	if v := os.Getenv(envIMAPPass); v != "" {
		c.ImapConfig.Pass = v
	}
	if v := os.Getenv(envArchiveAccessKeyID); v != "" {
		c.Archive.AccessKeyID = v
	}
	if v := os.Getenv(envArchiveSecretAccessKey); v != "" {
		c.Archive.SecretAccessKey = v
	}
}

func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.FetchInterval.Duration <= 0 {
		return fmt.Errorf("invalid configuration: fetchInterval must be positive")
	}
	return nil
}
