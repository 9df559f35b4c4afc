package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
	assert.Equal(t, "", WrapString(""))
}

func TestFactories(t *testing.T) {
	defer viper.Reset()

	for _, name := range []string{"json", "gob", "binary"} {
		viper.Set("serializer", name)
		s, err := GetSerializer()
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	viper.Set("serializer", "xml")
	_, err := GetSerializer()
	assert.Error(t, err)

	for _, name := range []string{"http", "tcp", "unix"} {
		viper.Set("transport", name)
		c, err := GetClientTransport()
		require.NoError(t, err, name)
		assert.NotNil(t, c)
		s, err := GetServerTransport()
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	viper.Set("transport", "carrier-pigeon")
	_, err = GetClientTransport()
	assert.Error(t, err)
	_, err = GetServerTransport()
	assert.Error(t, err)
}

func TestClientConfigFromEnv(t *testing.T) {
	defer viper.Reset()
	t.Setenv("SKV_TRANSPORT_ENDPOINTS", "a:1,b:2")
	t.Setenv("SKV_TIMEOUT", "7")
	t.Setenv("SKV_SHARD", "101")
	InitConfig()

	conf := GetClientConfig()
	assert.Equal(t, []string{"a:1", "b:2"}, conf.Endpoints)
	assert.Equal(t, 7, conf.TimeoutSecond)
	assert.Equal(t, uint64(101), GetShardID())
}
