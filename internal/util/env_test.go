package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("OLIE_TEST_VALUE", "")
	assert.Equal(t, "fallback", EnvOrDefault("OLIE_TEST_VALUE", "fallback"))

	t.Setenv("OLIE_TEST_VALUE", "set")
	assert.Equal(t, "set", EnvOrDefault("OLIE_TEST_VALUE", "fallback"))
}

func TestEnvBoolOrDefault(t *testing.T) {
	t.Setenv("OLIE_TEST_BOOL", "false")
	assert.False(t, EnvBoolOrDefault("OLIE_TEST_BOOL", true))

	t.Setenv("OLIE_TEST_BOOL", "nope")
	assert.True(t, EnvBoolOrDefault("OLIE_TEST_BOOL", true))
}

func TestEnvListOrDefault(t *testing.T) {
	t.Setenv("OLIE_TEST_LIST", " todo, ,doing ,done")
	assert.Equal(t, []string{"todo", "doing", "done"}, EnvListOrDefault("OLIE_TEST_LIST", nil))

	t.Setenv("OLIE_TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, EnvListOrDefault("OLIE_TEST_LIST", []string{"x"}))
}
