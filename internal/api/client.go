package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/trueLoving/Stationuli/internal/models"
)

// StatusError is a non-2xx answer from the control API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control api: status %d", e.Code)
	}
	return fmt.Sprintf("control api: status %d: %s", e.Code, e.Message)
}

// Client talks to a running node's control API.
type Client struct {
	addr    string
	timeout time.Duration
}

func NewClient(addr string) *Client {
	return &Client{addr: addr, timeout: 10 * time.Minute}
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) Info() (Info, error) {
	var info Info
	err := c.do(fiber.MethodGet, InfoPath, nil, &info)
	return info, err
}

func (c *Client) Start(port uint16) (Info, error) {
	var info Info
	err := c.do(fiber.MethodPost, StartPath, StartReq{Port: port}, &info)
	return info, err
}

func (c *Client) Stop() error {
	return c.do(fiber.MethodPost, StopPath, nil, nil)
}

func (c *Client) Devices() ([]models.DeviceInfo, error) {
	var devs []models.DeviceInfo
	err := c.do(fiber.MethodGet, DevicesPath, nil, &devs)
	return devs, err
}

func (c *Client) AddDevice(dev models.DeviceInfo) error {
	return c.do(fiber.MethodPost, DevicesPath, dev, nil)
}

func (c *Client) UpdateDevice(dev models.DeviceInfo) error {
	return c.do(fiber.MethodPut, devicePath(dev.ID), dev, nil)
}

func (c *Client) RemoveDevice(id string) error {
	return c.do(fiber.MethodDelete, devicePath(id), nil, nil)
}

func (c *Client) SendFile(path, address string, port uint16) error {
	return c.do(fiber.MethodPost, SendPath, SendReq{Path: path, Address: address, Port: port}, nil)
}

func (c *Client) TestConnection(address string, port uint16) error {
	return c.do(fiber.MethodPost, TestConnectionPath, TestConnectionReq{Address: address, Port: port}, nil)
}

func devicePath(id string) string {
	return DevicesPath + "/" + id
}

func (c *Client) do(method, path string, body, out any) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	c.prepareURI(req, path)
	req.Header.SetMethod(method)
	if err := agent.Parse(); err != nil {
		return err
	}
	agent.Timeout(c.timeout)
	if body != nil {
		agent.JSON(body)
	}

	status, b, errs := agent.Bytes()
	if len(errs) != 0 {
		return errs[0]
	}

	if status >= 300 {
		var e errorResp
		json.Unmarshal(b, &e)
		return &StatusError{Code: status, Message: e.Error}
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

func (c *Client) prepareURI(req *fasthttp.Request, path string) {
	req.Header.SetUserAgent("stationuli")
	req.URI().SetScheme("http")
	req.URI().SetHost(c.addr)
	req.URI().SetPath(path)
}
