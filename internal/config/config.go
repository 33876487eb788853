// Package config binds gzipi's global CLI flags, an optional config
// file, and GZIPI_* environment variables into one settings object
// via viper, the way a cobra-fronted CLI in this corpus wires its
// flags (cobra for parsing, viper for the file/env overlay).
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Global holds the persistent settings every gzipi subcommand shares,
// as opposed to the per-command flags (--format, --field, ...) each
// subcommand binds for itself.
type Global struct {
	Codec   string
	TempDir string
	Verbose bool
}

// New builds a viper instance pre-bound to flags, reads an optional
// config file (if configFile is non-empty), and binds GZIPI_*
// environment variables. Flags set on the command line take
// precedence, then environment variables, then the config file, then
// flag defaults.
func New(flags *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("gzipi")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// LoadGlobal materializes a Global from a bound viper instance.
func LoadGlobal(v *viper.Viper) Global {
	return Global{
		Codec:   v.GetString("codec"),
		TempDir: v.GetString("temp-dir"),
		Verbose: v.GetBool("verbose"),
	}
}
