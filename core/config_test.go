package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENV", "")

		conf := NewConfig()
		assert.Equal(t, "DEV", conf.Env)
		assert.False(t, conf.TestMode)
		assert.Equal(t, "EduLearn", conf.AppName)
		assert.Equal(t, QuotaStoreMemory, conf.Quota.Store)
		assert.Equal(t, 10, conf.Chat.RequestsPerMinute)
		assert.Equal(t, 100000, conf.Chat.TokensPerDay)
		assert.Equal(t, 2*time.Minute, conf.Chat.RequestTimeout)
		assert.Equal(t, "localhost:5432", conf.Database.Address())
		assert.NotEmpty(t, conf.WorkDir)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("ENV", "test")
		t.Setenv("TEST_CHAT_APIKEY", "k3y")
		t.Setenv("TEST_CHAT_REQUESTSPERMINUTE", "3")
		t.Setenv("TEST_QUOTA_STORE", "Redis")
		t.Setenv("TEST_ACTIVITY_BACKENDURL", "http://backend:3000/api/")
		t.Setenv("TEST_TASKS_TIMEOUT", "30s")

		conf := NewConfig()
		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.Equal(t, "k3y", conf.Chat.APIKey)
		assert.Equal(t, 3, conf.Chat.RequestsPerMinute)
		assert.Equal(t, QuotaStoreRedis, conf.Quota.Store)
		assert.Equal(t, "http://backend:3000/api", conf.Activity.BackendURL)
		assert.Equal(t, 30*time.Second, conf.Tasks.Timeout)
	})
}
