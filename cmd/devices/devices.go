package devices

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/api"
	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/models"
)

var (
	cfg, envErr = config.Load()
	dev         models.DeviceInfo
	devType     string
)

var Cmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices known to a running node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}

		devs, err := api.NewClient(cfg.APIAddr).Devices()
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			fmt.Fprintln(os.Stderr, "No device known")
			return nil
		}
		for _, d := range devs {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s:%d\n", d.ID, d.Name, d.DeviceType, d.Address, d.Port)
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a device by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dev.ID == "" || dev.Address == "" || dev.Port == 0 {
			return errors.New("--id, --address and --port are required")
		}
		dev.DeviceType = models.ParseDeviceType(devType)
		if dev.Name == "" {
			dev.Name = dev.Address
		}
		return api.NewClient(cfg.APIAddr).AddDevice(dev)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace a known device's details",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dev.ID == "" {
			return errors.New("--id is required")
		}
		dev.DeviceType = models.ParseDeviceType(devType)
		return api.NewClient(cfg.APIAddr).UpdateDevice(dev)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Forget a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.NewClient(cfg.APIAddr).RemoveDevice(args[0])
	},
}

func init() {
	Cmd.PersistentFlags().StringVar(&cfg.APIAddr, "api", cfg.APIAddr, "Control API address of the node")

	for _, c := range []*cobra.Command{addCmd, updateCmd} {
		c.Flags().StringVar(&dev.ID, "id", "", "Device id")
		c.Flags().StringVar(&dev.Name, "name", "", "Device name")
		c.Flags().StringVar(&dev.Address, "address", "", "Device IPv4 address")
		c.Flags().Uint16Var(&dev.Port, "port", 0, "Device transfer port")
		c.Flags().StringVar(&devType, "type", string(models.DeviceDesktop), "Device type: desktop or mobile")
	}

	Cmd.AddCommand(addCmd, updateCmd, rmCmd)
}
