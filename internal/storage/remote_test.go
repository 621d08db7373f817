package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      PostgreSQLConfig
		wantConn int32
		wantApp  string
	}{
		{
			name:     "defaults",
			cfg:      PostgreSQLConfig{URL: "postgres://u:p@localhost:5432/audit"},
			wantConn: 10,
			wantApp:  "piigate",
		},
		{
			name:     "explicit pool size",
			cfg:      PostgreSQLConfig{URL: "postgres://u:p@localhost:5432/audit", MaxConns: 3},
			wantConn: 3,
			wantApp:  "piigate",
		},
		{
			name:     "application name from url",
			cfg:      PostgreSQLConfig{URL: "postgres://u:p@localhost:5432/audit?application_name=compliance"},
			wantConn: 10,
			wantApp:  "compliance",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poolCfg, err := postgresPoolConfig(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConn, poolCfg.MaxConns)
			assert.Equal(t, 5*time.Minute, poolCfg.MaxConnIdleTime)
			assert.Equal(t, tt.wantApp, poolCfg.ConnConfig.RuntimeParams["application_name"])
		})
	}
}

func TestPostgresPoolConfigErrors(t *testing.T) {
	_, err := postgresPoolConfig(PostgreSQLConfig{})
	assert.ErrorContains(t, err, "URL is required")

	_, err = postgresPoolConfig(PostgreSQLConfig{URL: "postgres://localhost:notaport/audit"})
	assert.ErrorContains(t, err, "failed to parse")
}

func TestMongoClientOptions(t *testing.T) {
	opts := mongoClientOptions(MongoDBConfig{URL: "mongodb://localhost:27017"})
	require.NoError(t, opts.Validate())
	require.NotNil(t, opts.AppName)
	assert.Equal(t, "piigate", *opts.AppName)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 10*time.Second, *opts.ServerSelectionTimeout)

	opts = mongoClientOptions(MongoDBConfig{URL: "mongodb://localhost:27017/?appName=compliance&serverSelectionTimeoutMS=2000"})
	require.NoError(t, opts.Validate())
	assert.Equal(t, "compliance", *opts.AppName)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
}

func TestRemoteBackendsRequireURL(t *testing.T) {
	_, err := NewMongoDB(t.Context(), MongoDBConfig{})
	assert.ErrorContains(t, err, "MongoDB URL is required")

	_, err = NewPostgreSQL(t.Context(), PostgreSQLConfig{})
	assert.ErrorContains(t, err, "PostgreSQL URL is required")
}
