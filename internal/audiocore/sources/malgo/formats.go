package malgo

import "github.com/gen2brain/malgo"

// formatInfo returns the sample size in bytes and a display name for a malgo format.
func formatInfo(format malgo.FormatType) (bytesPerSample int, name string) {
	switch format {
	case malgo.FormatU8:
		return 1, "U8"
	case malgo.FormatS16:
		return 2, "S16"
	case malgo.FormatS24:
		return 3, "S24"
	case malgo.FormatS32:
		return 4, "S32"
	case malgo.FormatF32:
		return 4, "F32"
	default:
		return 0, "Unknown"
	}
}

// frameBytes returns the byte size of frames frames of S16 audio.
func frameBytes(channels uint32, frames int) int {
	return frames * int(channels) * 2
}
