package audiocore

import (
	"encoding/binary"
	"math"
)

// MaxAbsInt16 returns the largest absolute value among the little-endian
// 16-bit samples in pcm. -32768 saturates to 32767. A trailing odd byte is ignored.
func MaxAbsInt16(pcm []byte) int16 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += BytesPerSample {
		s := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
			if peak >= math.MaxInt16 {
				return math.MaxInt16
			}
		}
	}
	return int16(peak)
}
