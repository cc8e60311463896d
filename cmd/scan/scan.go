package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/discovery"
	"github.com/trueLoving/Stationuli/internal/models"
	"github.com/trueLoving/Stationuli/internal/transport"
	"github.com/trueLoving/Stationuli/internal/utils"
)

var (
	cfg, envErr = config.Load()
	timeout     int64
	probe       bool
)

var Cmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan local network for Stationuli devices",
	Long:  "Listen for multicast announcements and list the devices heard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}

		slog.Info("Start Scanning")

		scanner, err := discovery.NewDiscoverier(discovery.NewIdentity(cfg.Type()))
		if err != nil {
			return fmt.Errorf("create scanner: %w", err)
		}
		if err := scanner.Start(0); err != nil {
			return err
		}

		select {
		case <-time.After(time.Second * time.Duration(timeout)):
		case <-utils.WaitForSignal():
		}

		devlist := scanner.Devices()
		slog.Info("Stop Scanning")
		scanner.Stop()

		if len(devlist) == 0 {
			fmt.Fprintln(os.Stderr, "No device found")
			return nil
		}

		reachable := map[string]bool{}
		if probe {
			reachable = probeAll(devlist)
		}

		fmt.Fprintf(os.Stdout, "Found Devices: \n")
		for _, info := range devlist {
			line := fmt.Sprintf("\tName: %s, ID: %s, Type: %s, Address: %s:%d",
				info.Name, info.ID, info.DeviceType, info.Address, info.Port)
			if probe {
				line += fmt.Sprintf(", Reachable: %t", reachable[info.ID])
			}
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}

// probeAll dials every device concurrently.
func probeAll(devs []models.DeviceInfo) map[string]bool {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = make(map[string]bool, len(devs))
	)

	utils.ForEachAsync(devs, &wg, func(dev models.DeviceInfo) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		ok := false
		if conn, err := transport.Connect(ctx, dev.Address, dev.Port); err == nil {
			conn.Close()
			ok = true
		}

		mu.Lock()
		res[dev.ID] = ok
		mu.Unlock()
	})
	wg.Wait()

	return res
}

func init() {
	Cmd.PersistentFlags().Int64VarP(&timeout, "timeout", "t", 4, "scan duration in seconds")
	Cmd.PersistentFlags().BoolVar(&probe, "probe", false, "check that each device accepts connections")
}
