package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// setDefaultConfig registers every key so that environment overrides and
// Unmarshal see the full tree.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("device.mode", "duplex")
	v.SetDefault("device.capture", "default")
	v.SetDefault("device.playback", "default")
	v.SetDefault("device.periodmillis", 10)

	v.SetDefault("audio.samplerate", 48000)
	v.SetDefault("audio.recordchannels", 1)
	v.SetDefault("audio.playoutchannels", 1)

	v.SetDefault("stats.reportinterval", audiocore.DefaultReportInterval)
	v.SetDefault("stats.minvalidcallduration", audiocore.DefaultMinValidCallDuration)
	v.SetDefault("stats.samplingdivisor", audiocore.DefaultStatsSamplingDivisor)
	v.SetDefault("stats.workerqueuesize", audiocore.DefaultWorkerQueueSize)
	v.SetDefault("stats.paniconthreadviolation", false)

	v.SetDefault("transport.type", "loopback")
	v.SetDefault("transport.loopbackmillis", 200)
	v.SetDefault("transport.wavinput", "")
	v.SetDefault("transport.wavoutput", "")
	v.SetDefault("transport.loop", true)

	v.SetDefault("log.default_level", logger.DefaultLogLevel)
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("log.console.level", logger.DefaultLogLevel)
	v.SetDefault("log.file_output.enabled", false)
	v.SetDefault("log.file_output.path", logger.DefaultLogPath)
	v.SetDefault("log.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:9870")
	v.SetDefault("http.reportretention", time.Hour)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientid", "audiodevicebuffer")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "audiodevicebuffer")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)
	v.SetDefault("sentry.debug", false)
}
