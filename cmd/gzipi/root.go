package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	gzconfig "github.com/gzipi/gzipi/internal/config"
	"github.com/gzipi/gzipi/internal/logging"
)

var (
	flagCodec      string
	flagConfigFile string
	flagVerbose    bool
	flagTempDir    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gzipi",
		Short:         "Block-compressed, randomly-retrievable record archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		// PersistentPreRunE overlays an optional --config file and
		// GZIPI_* environment variables over whichever persistent
		// flags the invocation left at their defaults, the same
		// flags/env/file precedence viper gives any cobra command.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := gzconfig.New(cmd.Root().PersistentFlags(), flagConfigFile)
			if err != nil {
				return err
			}
			global := gzconfig.LoadGlobal(v)
			if !cmd.Flags().Changed("codec") {
				flagCodec = global.Codec
			}
			if !cmd.Flags().Changed("verbose") {
				flagVerbose = global.Verbose
			}
			if !cmd.Flags().Changed("temp-dir") {
				flagTempDir = global.TempDir
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagCodec, "codec", "gzip", "archive/index codec: gzip or zstd")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "optional config file (toml, yaml, json)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagTempDir, "temp-dir", "", "directory for scratch/spill files (default: OS temp dir)")

	root.AddCommand(newRepackCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newRetrieveCmd())
	root.AddCommand(newSearchCmd())

	return root
}

func newLogger() *logrus.Entry {
	return logging.New(flagVerbose).WithField("component", "gzipi")
}
