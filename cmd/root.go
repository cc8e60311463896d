package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/cmd/devices"
	"github.com/trueLoving/Stationuli/cmd/project"
	"github.com/trueLoving/Stationuli/cmd/scan"
	"github.com/trueLoving/Stationuli/cmd/send"
	"github.com/trueLoving/Stationuli/cmd/serve"
	"github.com/trueLoving/Stationuli/cmd/watch"
	"github.com/trueLoving/Stationuli/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "stationuli",
	Short: "Stationuli LAN transfer",
	Long:  "Discover peers on the local network, exchange files and project screens",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("verbose") {
			if cfg, err := config.Load(); err == nil {
				verbose = cfg.Verbose
			}
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("Fail to execute", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(send.Cmd)
	rootCmd.AddCommand(scan.Cmd)
	rootCmd.AddCommand(devices.Cmd)
	rootCmd.AddCommand(project.Cmd)
	rootCmd.AddCommand(watch.Cmd)
}
