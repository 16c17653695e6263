package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Parallel()
	info := Get()
	assert.Equal(t, "unknown", info.Version)
	assert.Equal(t, "unknown", info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, "audiodevicebuffer@unknown", info.Release())

	_, err := uuid.Parse(info.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, info.InstanceID, Get().InstanceID, "instance ID is stable for the process")
}
