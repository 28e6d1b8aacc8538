package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var c Config
	c.Database.MySQL.DSN = "user:pass@tcp(localhost:3306)/catalog"
	c.MinIO.Endpoint = "localhost:9000"
	c.MinIO.BucketName = "files"
	c.Migration.DataRoot = "/var/data"
	c.Migration.SourceIdentifier = "local::/var/data/"
	return c
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, 100, c.Migration.BatchSize)
	assert.Equal(t, 60, c.MinIO.RequestTimeoutSec)
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	var c Config
	err := c.Validate()
	require.Error(t, err)

	// 所有缺失项一次性报告
	assert.Contains(t, err.Error(), "database.mysql.dsn")
	assert.Contains(t, err.Error(), "minio.endpoint")
	assert.Contains(t, err.Error(), "minio.bucket_name")
	assert.Contains(t, err.Error(), "migration.data_root")
	assert.Contains(t, err.Error(), "migration.source_identifier")
}

func TestValidateRejectsUnknownDryRunLevel(t *testing.T) {
	c := validConfig()
	c.Migration.DryRun = "2"
	assert.Error(t, c.Validate())

	for _, level := range []string{"", "off", "full", "no-transfer"} {
		c := validConfig()
		c.Migration.DryRun = level
		assert.NoError(t, c.Validate(), level)
	}
}
