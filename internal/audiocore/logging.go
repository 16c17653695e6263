package audiocore

import "github.com/tphakala/audiodevicebuffer/internal/logger"

// GetLogger returns the audiocore logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(ComponentAudioCore)
}
