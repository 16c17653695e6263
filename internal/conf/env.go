package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// configureEnvironment maps nested keys onto ADB_* variables, e.g.
// stats.reportinterval is read from ADB_STATS_REPORTINTERVAL.
func configureEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
