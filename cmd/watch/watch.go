package watch

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/utils"
)

var cfg, envErr = config.Load()

var Cmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a running node's notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-utils.WaitForSignal()
			cancel()
		}()

		url := "ws://" + cfg.EventsAddr + "/events"
		return events.Watch(ctx, url, func(ev events.ReceivedEvent) {
			fmt.Fprintf(os.Stdout, "%s %s %s\n", ev.Time.Format("15:04:05.000"), ev.Name, ev.Payload)
		})
	},
}

func init() {
	Cmd.PersistentFlags().StringVar(&cfg.EventsAddr, "events", cfg.EventsAddr, "Websocket event address of the node")
}
