package config

import (
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	t.Parallel()

	c, err := GetConfig(Defaults(), path.Join("testdata", "test.json"))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, 30*time.Minute, c.FetchInterval.Duration)
	assert.Equal(t, 10, c.BatchSize)
	assert.Equal(t, int64(1048576), c.MaxPayloadSize)
	assert.True(t, c.DeleteProcessed)
	assert.Equal(t, "imap.example.com:993", c.ImapConfig.Host)
	assert.Equal(t, 2*time.Minute, c.ImapConfig.Timeout.Duration)
	assert.Equal(t, "s3", c.Archive.Type)
	assert.Equal(t, "dmarc-reports", c.Archive.Bucket)
	assert.Equal(t, "syslog", c.Analytics.Type)
	assert.Equal(t, "udp", c.Analytics.SyslogProtocol)
	assert.Equal(t, "127.0.0.1:9100", c.Metrics.Listen)
}

func TestGetConfigYAML(t *testing.T) {
	t.Parallel()

	c, err := GetConfig(Defaults(), path.Join("testdata", "test.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, c.FetchInterval.Duration)
	assert.Equal(t, 5, c.BatchSize)
	assert.Equal(t, "filesystem", c.Archive.Type)
	assert.Equal(t, "/var/lib/dmarc/archive", c.Archive.Directory)
	assert.Equal(t, "log", c.Analytics.Type)
	assert.Equal(t, 30*time.Second, c.ImapConfig.Timeout.Duration)
	// values not present in the file keep their defaults
	assert.Equal(t, "INBOX", c.ImapConfig.Folder)
	assert.Equal(t, "tcp", c.Analytics.SyslogProtocol)
}

func TestGetConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := GetConfig(Defaults(), "")
	require.Error(t, err)
	_, err = GetConfig(Defaults(), "this_does_not_exist")
	require.Error(t, err)
}

func TestGetConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := GetConfig(Defaults(), path.Join("testdata", "invalid.json"))
	require.Error(t, err)
}

func TestGetConfigInvalidValues(t *testing.T) {
	t.Parallel()

	_, err := GetConfig(Defaults(), path.Join("testdata", "invalid_values.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BatchSize")
	assert.Contains(t, err.Error(), "Bucket")
	assert.Contains(t, err.Error(), "Type")
}

func TestGetConfigEnvOverride(t *testing.T) {
	t.Setenv(envIMAPPass, "from-env")
	t.Setenv(envArchiveSecretAccessKey, "env-secret")

	c, err := GetConfig(Defaults(), path.Join("testdata", "test.json"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.ImapConfig.Pass)
	assert.Equal(t, "env-secret", c.Archive.SecretAccessKey)
	assert.Equal(t, "key", c.Archive.AccessKeyID)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		modify  func(c *Configuration)
		wantErr bool
	}{
		"defaults": {
			modify: func(*Configuration) {},
		},
		"filesystem without directory": {
			modify:  func(c *Configuration) { c.Archive.Type = "filesystem" },
			wantErr: true,
		},
		"syslog without server": {
			modify:  func(c *Configuration) { c.Analytics.Type = "syslog" },
			wantErr: true,
		},
		"imap host without user": {
			modify:  func(c *Configuration) { c.ImapConfig.Host = "imap.example.com:993" },
			wantErr: true,
		},
		"imap host without port": {
			modify: func(c *Configuration) {
				c.ImapConfig.Host = "imap.example.com"
				c.ImapConfig.User = "user"
			},
			wantErr: true,
		},
		"invalid metrics listen": {
			modify:  func(c *Configuration) { c.Metrics.Listen = "everywhere" },
			wantErr: true,
		},
		"zero fetch interval": {
			modify:  func(c *Configuration) { c.FetchInterval.Duration = 0 },
			wantErr: true,
		},
		"negative payload size": {
			modify:  func(c *Configuration) { c.MaxPayloadSize = -1 },
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := Defaults()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDurationYAMLInvalid(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "c.yml")
	require.NoError(t, os.WriteFile(f, []byte("fetchInterval: soon\n"), 0o600))
	_, err := GetConfig(Defaults(), f)
	require.Error(t, err)
}

func TestDurationJSON(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1h30m"`)))
	assert.Equal(t, 90*time.Minute, d.Duration)
	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Duration)
	require.Error(t, d.UnmarshalJSON([]byte(`true`)))

	b, err := Duration{Duration: time.Second}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"1s"`, string(b))
}
