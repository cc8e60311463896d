// Package api exposes a node's operations over a local HTTP control API for
// GUI shells and the CLI.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/models"
	"github.com/trueLoving/Stationuli/internal/session"
	"github.com/trueLoving/Stationuli/internal/transfer"
)

// Node is the part of session.Manager the API drives.
type Node interface {
	Start(port uint16) error
	Stop() error
	State() session.State
	Port() uint16
	DeviceID() string
	LocalIP() string
	Devices() []models.DeviceInfo
	AddDevice(info models.DeviceInfo) error
	RemoveDevice(id string) error
	UpdateDevice(info models.DeviceInfo) error
	SendFile(ctx context.Context, path, address string, port uint16, progress transfer.ProgressFunc) error
	TestConnection(ctx context.Context, address string, port uint16) error
}

type Info struct {
	ID      string `json:"id"`
	LocalIP string `json:"local_ip"`
	Port    uint16 `json:"port"`
	State   string `json:"state"`
}

type StartReq struct {
	Port uint16 `json:"port"`
}

type SendReq struct {
	Path    string `json:"path"`
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

type TestConnectionReq struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

type errorResp struct {
	Error string `json:"error"`
}

type Server struct {
	app  *fiber.App
	node Node
}

func NewServer(node Node) *Server {
	s := &Server{
		node: node,
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
	}

	s.app.Get(InfoPath, s.infoHandler)
	s.app.Post(StartPath, s.startHandler)
	s.app.Post(StopPath, s.stopHandler)
	s.app.Get(DevicesPath, s.devicesHandler)
	s.app.Post(DevicesPath, s.addDeviceHandler)
	s.app.Put(DevicePath, s.updateDeviceHandler)
	s.app.Delete(DevicePath, s.removeDeviceHandler)
	s.app.Post(SendPath, s.sendHandler)
	s.app.Post(TestConnectionPath, s.testConnectionHandler)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	slog.Info("Control API listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Control API listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := serrors.Status(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(errorResp{Error: err.Error()})
}

func (s *Server) infoHandler(c *fiber.Ctx) error {
	return c.JSON(Info{
		ID:      s.node.DeviceID(),
		LocalIP: s.node.LocalIP(),
		Port:    s.node.Port(),
		State:   s.node.State().String(),
	})
}

func (s *Server) startHandler(c *fiber.Ctx) error {
	var req StartReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.node.Start(req.Port); err != nil {
		return err
	}
	return s.infoHandler(c)
}

func (s *Server) stopHandler(c *fiber.Ctx) error {
	if err := s.node.Stop(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) devicesHandler(c *fiber.Ctx) error {
	return c.JSON(s.node.Devices())
}

func (s *Server) addDeviceHandler(c *fiber.Ctx) error {
	var dev models.DeviceInfo
	if err := c.BodyParser(&dev); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if dev.ID == "" || dev.Address == "" || dev.Port == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "id, address and port are required")
	}
	dev.DeviceType = models.ParseDeviceType(string(dev.DeviceType))

	if err := s.node.AddDevice(dev); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dev)
}

func (s *Server) updateDeviceHandler(c *fiber.Ctx) error {
	var dev models.DeviceInfo
	if err := c.BodyParser(&dev); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	// strings in fiber are unsafe due to zero allocation
	dev.ID = fiberutils.CopyString(c.Params("id"))
	dev.DeviceType = models.ParseDeviceType(string(dev.DeviceType))

	if err := s.node.UpdateDevice(dev); err != nil {
		return err
	}
	return c.JSON(dev)
}

func (s *Server) removeDeviceHandler(c *fiber.Ctx) error {
	if err := s.node.RemoveDevice(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sendHandler(c *fiber.Ctx) error {
	var req SendReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Path) == "" || req.Address == "" || req.Port == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "path, address and port are required")
	}

	if err := s.node.SendFile(c.UserContext(), req.Path, req.Address, req.Port, nil); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) testConnectionHandler(c *fiber.Ctx) error {
	var req TestConnectionReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.node.TestConnection(c.UserContext(), req.Address, req.Port); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}
