package api

const (
	InfoPath           = "/api/v1/info"
	StartPath          = "/api/v1/service/start"
	StopPath           = "/api/v1/service/stop"
	DevicesPath        = "/api/v1/devices"
	DevicePath         = "/api/v1/devices/:id"
	SendPath           = "/api/v1/send"
	TestConnectionPath = "/api/v1/test-connection"
)
