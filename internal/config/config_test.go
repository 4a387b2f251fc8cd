package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, CSV(" a:9092, ,b:9092 "))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("UMS_TEST_INT", "42")
	t.Setenv("UMS_TEST_BAD_INT", "x")
	t.Setenv("UMS_TEST_DUR", "90m")
	t.Setenv("UMS_TEST_BAD_DUR", "-1h")

	assert.Equal(t, 42, EnvIntDefault("UMS_TEST_INT", 1))
	assert.Equal(t, 1, EnvIntDefault("UMS_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Minute, EnvDurationDefault("UMS_TEST_DUR", time.Hour))
	assert.Equal(t, time.Hour, EnvDurationDefault("UMS_TEST_BAD_DUR", time.Hour))
	assert.Equal(t, "def", EnvDefault("UMS_TEST_MISSING", "def"))

	t.Setenv("UMS_TEST_BOOL", "true")
	t.Setenv("UMS_TEST_BAD_BOOL", "maybe")
	assert.True(t, EnvBoolDefault("UMS_TEST_BOOL", false))
	assert.False(t, EnvBoolDefault("UMS_TEST_BAD_BOOL", false))
	assert.False(t, EnvBoolDefault("UMS_TEST_MISSING", false))
}

func TestLoad_SMTPVerifiesTLSUnlessAskedNotTo(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("SMTP_INSECURE", "")
	assert.False(t, Load().SMTPInsecure)

	t.Setenv("SMTP_INSECURE", "1")
	assert.True(t, Load().SMTPInsecure)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_TTL", "")
	t.Setenv("SESSION_REMEMBER_TTL", "")
	t.Setenv("APP_ENV", "production")

	cfg := Load()
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionRememberTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.True(t, cfg.Production())
}

func TestInitDB_Disabled(t *testing.T) {
	tests := []Config{
		{DBDriver: "disabled"},
		{DBDriver: "postgres", DatabaseURL: ""},
	}
	for _, cfg := range tests {
		db, err := InitDB(context.Background(), cfg)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.True(t, errors.Is(err, ErrDatabaseDisabled))
	}
}

func TestInitDB_UnknownDriver(t *testing.T) {
	_, err := InitDB(context.Background(), Config{DBDriver: "oracle"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDatabaseDisabled))
}

func TestOpenSQLite_Migrates(t *testing.T) {
	db, err := OpenSQLite(context.Background(), "file:config_test?mode=memory&cache=shared", "silent")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	for _, table := range []string{"users", "sessions", "one_time_tokens", "user_roles", "audit_logs", "user_groups", "group_members", "settings", "outbox_messages"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.NoError(t, Config{BootstrapAdminEmail: "root@x.com", BootstrapAdminPassword: "rootpassword1"}.Validate())

	err := Config{BootstrapAdminEmail: "root@x.com"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOTSTRAP_ADMIN_PASSWORD")
}
