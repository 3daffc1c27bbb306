package sixdof

import (
	"fmt"
	"os"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/spf13/viper"
)

// ConfigEnv is the environment variable pointing to the directory holding conf.toml.
const ConfigEnv = "SIXDOF_CONFIG"

// OutputConfig is the package configuration read from $SIXDOF_CONFIG/conf.toml.
type OutputConfig struct {
	OutputDir string
	LogLevel  string
}

var levelRanks = map[string]int{"debug": 0, "info": 1, "notice": 1, "warning": 2, "warn": 2, "error": 3, "critical": 3}

// Logger returns a logfmt logger on stdout which drops the entries below the
// configured level. Entries without a "level" key are always written.
func (c OutputConfig) Logger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	return levelFilter(kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC), c.LogLevel)
}

func levelFilter(next kitlog.Logger, minLevel string) kitlog.Logger {
	threshold, ok := levelRanks[strings.ToLower(minLevel)]
	if !ok {
		threshold = levelRanks["info"]
	}
	return kitlog.LoggerFunc(func(keyvals ...interface{}) error {
		for i := 0; i+1 < len(keyvals); i += 2 {
			if k, _ := keyvals[i].(string); k == "level" {
				lvl, _ := keyvals[i+1].(string)
				if rank, known := levelRanks[lvl]; known && rank < threshold {
					return nil
				}
				break
			}
		}
		return next.Log(keyvals...)
	})
}

// LoadOutputConfig reads the configuration from the directory in $SIXDOF_CONFIG.
// Without that variable, files are written to the current directory.
func LoadOutputConfig() (OutputConfig, error) {
	v := viper.New()
	v.SetDefault("general.output_path", ".")
	v.SetDefault("general.log_level", "info")
	confPath := os.Getenv(ConfigEnv)
	if confPath != "" {
		v.SetConfigName("conf")
		v.SetConfigType("toml")
		v.AddConfigPath(confPath)
		if err := v.ReadInConfig(); err != nil {
			return OutputConfig{}, fmt.Errorf("%w: %s/conf.toml: %s", ErrInvalidConfig, confPath, err)
		}
	}
	conf := OutputConfig{OutputDir: v.GetString("general.output_path"), LogLevel: v.GetString("general.log_level")}
	if info, err := os.Stat(conf.OutputDir); err != nil || !info.IsDir() {
		return OutputConfig{}, fmt.Errorf("%w: output path %q is not a directory", ErrInvalidConfig, conf.OutputDir)
	}
	return conf, nil
}
