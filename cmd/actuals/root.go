package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/actuals-engine/config"
)

// app carries the viper instance and the --config path to every command.
type app struct {
	v          *viper.Viper
	configPath string
}

func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.configPath)
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "actuals",
		Short: "Actuals – time-entry rules engine",
		Long: `actuals validates and records hours against projects, operations and
leave. It serves the HTTP API and exposes the calendar calculations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().String("env", "development", "Environment: development or production")
	_ = a.v.BindPFlag("env", root.PersistentFlags().Lookup("env"))

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newWorkdaysCmd(a))
	root.AddCommand(newLeaveHoursCmd(a))
	return root
}

// bindBackendFlag binds backend.base_url to the named flag of the command
// being run. Several commands expose the key under different flag names,
// so the binding happens at run time.
func bindBackendFlag(a *app, name string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return a.v.BindPFlag("backend.base_url", cmd.Flags().Lookup(name))
	}
}
