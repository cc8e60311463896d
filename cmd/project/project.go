package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/trueLoving/Stationuli/internal/config"
	"github.com/trueLoving/Stationuli/internal/projection"
	"github.com/trueLoving/Stationuli/internal/utils"
)

var (
	cfg, envErr = config.Load()
	pcfg        = projection.DefaultConfig()
	address     string
	port        uint16
	image       string
	outDir      string
	listen      bool
)

var Cmd = &cobra.Command{
	Use:   "project",
	Short: "Stream screen frames to or from a peer",
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Stream an image file as projection frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		if image == "" {
			return errors.New("--image is required")
		}

		stream := projection.NewStream(pcfg)
		defer stream.Close()

		if err := open(stream); err != nil {
			return err
		}

		src := projection.FileSource{Path: image, Config: pcfg}
		if err := stream.StartStreaming(src); err != nil {
			return err
		}
		slog.Info("Projecting (Ctrl-C to terminate)", "image", image, "fps", pcfg.FPS)

		select {
		case <-utils.WaitForSignal():
			stream.StopStreaming()
		case <-stream.Done():
			return errors.New("projection connection closed")
		}
		return nil
	},
}

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive projection frames and keep the latest one on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		if envErr != nil {
			return envErr
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}

		stream := projection.NewStream(pcfg)
		defer stream.Close()

		if err := open(stream); err != nil {
			return err
		}

		var frames atomic.Uint64
		latest := filepath.Join(outDir, "latest.jpg")
		err := stream.ReceiveStream(func(f projection.Frame) {
			frames.Add(1)
			tmp := latest + ".tmp"
			if err := os.WriteFile(tmp, f.Data, 0o644); err != nil {
				slog.Warn("Fail to write frame", "error", err)
				return
			}
			os.Rename(tmp, latest)
		})
		if err != nil {
			return err
		}
		slog.Info("Receiving projection (Ctrl-C to terminate)", "out", latest)

		select {
		case <-utils.WaitForSignal():
			stream.StopStreaming()
		case <-stream.Done():
		}
		fmt.Fprintf(os.Stdout, "Received %d frames\n", frames.Load())
		return nil
	},
}

// open either waits for the peer or dials it.
func open(stream *projection.Stream) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if listen {
		go func() {
			select {
			case <-utils.WaitForSignal():
				cancel()
			case <-ctx.Done():
			}
		}()
		return stream.Accept(ctx, port)
	}

	if address == "" {
		return errors.New("--to is required unless --listen is set")
	}
	ctx, cancelDial := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancelDial()
	return stream.Connect(ctx, address, port)
}

func init() {
	Cmd.PersistentFlags().StringVarP(&address, "to", "t", "", "Peer address")
	Cmd.PersistentFlags().Uint16VarP(&port, "port", "p", 9002, "Projection port")
	Cmd.PersistentFlags().BoolVarP(&listen, "listen", "l", false, "Wait for the peer to connect instead of dialing")

	sendCmd.Flags().StringVarP(&image, "image", "i", "", "Image file captured on every tick")
	sendCmd.Flags().Uint32Var(&pcfg.FPS, "fps", pcfg.FPS, "Frames per second")
	sendCmd.Flags().Uint8Var(&pcfg.Quality, "quality", pcfg.Quality, "JPEG quality 1-100")
	sendCmd.Flags().Uint32Var(&pcfg.MaxWidth, "max-width", pcfg.MaxWidth, "Largest frame width")
	sendCmd.Flags().Uint32Var(&pcfg.MaxHeight, "max-height", pcfg.MaxHeight, "Largest frame height")

	recvCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for latest.jpg")

	Cmd.AddCommand(sendCmd, recvCmd)
}
