// Package config initializes the global Viper instance used by the CLI.
// Values come from a config file, LAWCRAWLER_* environment variables and
// command-line flags bound by the cmd package.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	internalconfig "github.com/JakeFAU/law-notes-crawler/internal/config"
)

// InitConfig prepares the global viper. An explicit cfgFile must exist;
// otherwise a missing config.yaml in the search paths is not an error.
// It returns the file used, or "" when running on defaults.
func InitConfig(cfgFile string) (string, error) {
	return initViper(viper.GetViper(), cfgFile)
}

func initViper(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lawcrawler/")
		v.AddConfigPath("$HOME/.lawcrawler")
	}

	internalconfig.SetDefaults(v)

	v.SetEnvPrefix(internalconfig.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
