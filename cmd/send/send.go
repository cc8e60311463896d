package send

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/api"
	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/transfer"
	"github.com/trueLoving/Stationuli/internal/utils"
)

var (
	cfg, envErr = config.Load()
	address     string
	port        uint16
	viaAPI      bool
)

var Cmd = &cobra.Command{
	Use:   "send [file...]",
	Short: "Send files to a peer",
	Long:  "Send files to a peer directly, or through a running node's control API",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		if address == "" {
			return errors.New("--to is required")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if viaAPI {
			client := api.NewClient(cfg.APIAddr)
			for _, f := range args {
				if err := client.SendFile(f, address, port); err != nil {
					return fmt.Errorf("send %s: %w", f, err)
				}
				slog.Info("Sent", "file", f)
			}
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-utils.WaitForSignal():
				cancel()
			case <-ctx.Done():
			}
		}()

		sender := transfer.NewSender(cfg.SenderOptions()...)
		for _, f := range args {
			err := sender.SendFile(ctx, f, address, port, printProgress(f))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("send %s: %w", f, err)
			}
		}
		return nil
	},
}

func printProgress(name string) transfer.ProgressFunc {
	return func(sent, total uint64) {
		pct := 100.0
		if total > 0 {
			pct = float64(sent) / float64(total) * 100
		}
		fmt.Fprintf(os.Stderr, "\r%s: %5.1f%% (%d/%d bytes)", name, pct, sent, total)
	}
}

func init() {
	Cmd.PersistentFlags().StringVarP(&address, "to", "t", "", "Receiver address")
	Cmd.PersistentFlags().Uint16VarP(&port, "port", "p", cfg.Port, "Receiver port")
	Cmd.PersistentFlags().IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Chunk size in bytes")
	Cmd.PersistentFlags().DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Give up connecting after this long")
	Cmd.PersistentFlags().BoolVar(&viaAPI, "via-api", false, "Hand the files to the node behind --api instead of sending directly")
	Cmd.PersistentFlags().StringVar(&cfg.APIAddr, "api", cfg.APIAddr, "Control API address used with --via-api")
}
