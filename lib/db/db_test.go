package db

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseInfoJSON(t *testing.T) {
	info := DatabaseInfo{
		SizeBytes:         4096,
		Entries:           3,
		DbType:            ImplBTree,
		SupportedFeatures: []Feature{FeatureInsert, FeatureGet, FeatureCheck},
	}

	b, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"supported_features":["Insert","Get","Check"]`)

	var decoded DatabaseInfo
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, info, decoded)

	var f Feature
	assert.Error(t, f.UnmarshalText([]byte("Expire")))
}
