package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore/sources/malgo"
)

func TestPrintDevices(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := printDevices(&buf, []malgo.DeviceInfo{
		{Index: 0, Kind: "capture", Name: "USB Mic", ID: "hw:1,0", IsDefault: true},
		{Index: 1, Kind: "playback", Name: "Speakers", ID: "hw:0,0"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "KIND"))
	assert.Contains(t, lines[1], "USB Mic")
	assert.Contains(t, lines[1], "*")
	assert.Contains(t, lines[2], "Speakers")
	assert.NotContains(t, lines[2], "*")
}
