package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"AS55836"}, splitList("AS55836"))
	assert.Equal(t, []string{"AS55836", "AS45609"}, splitList(" AS55836 , AS45609 "))
	assert.Equal(t, []string{"10.0.0.0/8"}, splitList(",10.0.0.0/8,,"))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("GUARDIAN_TEST_STR", "value")
	assert.Equal(t, "value", getEnv("GUARDIAN_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("GUARDIAN_TEST_MISSING", "fallback"))

	t.Setenv("GUARDIAN_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("GUARDIAN_TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("GUARDIAN_TEST_INT_MISSING", 7))

	t.Setenv("GUARDIAN_TEST_BAD_INT", "forty")
	assert.Equal(t, 7, getEnvInt("GUARDIAN_TEST_BAD_INT", 7))
}

func TestProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).Production())
	assert.True(t, (&Config{Environment: "Production"}).Production())
	assert.False(t, (&Config{Environment: "development"}).Production())
	assert.False(t, (&Config{}).Production())
}
