package main

import (
	"os"

	"github.com/go-go-golems/vizthinker/cmd/vizthinker/cmds"
	"github.com/go-go-golems/vizthinker/pkg/config"
	"github.com/go-go-golems/vizthinker/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vizthinker",
	Short: "vizthinker serves and manages branching conversation trees",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitViper(viper.GetViper(), configPath); err != nil {
			return err
		}
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		if err := initLogger(); err != nil {
			return err
		}
		log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")
		return nil
	},
	SilenceUsage: true,
}

func initLogger() error {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}
	return logging.InitLogger(&logging.Config{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml, ~/.vizthinker/config.yaml)")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also write logs to this file, rotated")
	pf.Bool("with-caller", false, "Log caller")
	pf.BoolP("verbose", "v", false, "Shortcut for --log-level debug")

	err := viper.BindPFlags(pf)
	cobra.CheckErr(err)

	_ = logging.InitLogger(&logging.Config{Level: "info", LogFormat: "text"})

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewMigrateCommand(),
		cmds.NewMessagesCommand(),
		cmds.NewPathCommand(),
		cmds.NewDeleteCommand(),
		cmds.NewPositionsCommand(),
		cmds.NewExportCommand(),
		cmds.NewSchemaCommand(),
		cmds.NewUserCommand(),
	)
}
