package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/api"
	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/discovery"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/session"
	"github.com/trueLoving/Stationuli/internal/utils"
)

var (
	cfg, envErr = config.Load()
	noMulticast bool
)

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Announce this device and receive files",
	Long:  "Announce this device on the LAN, receive files into a directory and expose the local control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		if noMulticast {
			cfg.Multicast = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cfg)
	},
}

func run(cfg config.Config) error {
	bus := events.NewBus()

	opts := []session.Option{
		session.WithSink(bus),
		session.WithDeviceType(cfg.Type()),
		session.WithDeviceName(cfg.DeviceName),
		session.WithSenderOptions(cfg.SenderOptions()...),
		session.WithReceiverOptions(cfg.ReceiverOptions()...),
	}
	if !cfg.Multicast {
		opts = append(opts, session.WithDiscoveryOptions(discovery.WithoutMulticast()))
	}

	mgr := session.New(cfg.ReceiveDir, opts...)
	if err := mgr.Start(cfg.Port); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	go printReceived(received)

	if cfg.EventsAddr != "" {
		hub := events.NewHub(bus)
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.EventsAddr); err != nil {
				slog.Error("Event hub stopped", "error", err)
			}
		}()
	}

	var srv *api.Server
	if cfg.APIAddr != "" {
		srv = api.NewServer(mgr)
		go func() {
			if err := srv.Listen(cfg.APIAddr); err != nil {
				slog.Error("Control API stopped", "error", err)
			}
		}()
	}

	slog.Info("Waiting for files (Ctrl-C to terminate)",
		"id", mgr.DeviceID(), "ip", mgr.LocalIP(), "port", mgr.Port())

	<-utils.WaitForSignal()

	if srv != nil {
		srv.Shutdown()
	}
	cancel()
	return mgr.Stop()
}

func printReceived(ch <-chan events.Event) {
	for ev := range ch {
		if p, ok := ev.Payload.(events.FileReceivedPayload); ok && ev.Name == events.FileReceived {
			fmt.Fprintf(os.Stdout, "Received %s (%d bytes) from %s\n", p.Path, p.Size, p.Remote)
		}
	}
}

func init() {
	Cmd.PersistentFlags().Uint16VarP(&cfg.Port, "port", "p", cfg.Port, "TCP port to receive on")
	Cmd.PersistentFlags().StringVarP(&cfg.ReceiveDir, "dir", "d", cfg.ReceiveDir, "Directory for received files")
	Cmd.PersistentFlags().StringVarP(&cfg.DeviceName, "devname", "n", cfg.DeviceName, "Device name that is advertising (defaults to host name)")
	Cmd.PersistentFlags().StringVar(&cfg.DeviceType, "type", cfg.DeviceType, "Device type: desktop or mobile")
	Cmd.PersistentFlags().StringVar(&cfg.APIAddr, "api", cfg.APIAddr, "Control API address, empty to disable")
	Cmd.PersistentFlags().StringVar(&cfg.EventsAddr, "events", cfg.EventsAddr, "Websocket event address, empty to disable")
	Cmd.PersistentFlags().DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Abort a transfer after this long without data")
	Cmd.PersistentFlags().Uint64Var(&cfg.MaxFileSize, "max-size", cfg.MaxFileSize, "Reject files larger than this many bytes, 0 for no limit")
	Cmd.PersistentFlags().BoolVar(&noMulticast, "no-multicast", false, "Do not announce or listen on the multicast group")
}
