// Package discovery announces this device on the local network and keeps a
// registry of the peers it hears from.
package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/models"
)

const (
	DefaultGroup     = "224.0.0.251:5354"
	announceInterval = 2 * time.Second
	readTimeout      = time.Second
	multicastTTL     = 4
)

type Option func(*Discoverier) error

// WithGroup overrides the multicast group and port, e.g. "239.255.42.42:9900".
func WithGroup(addr string) Option {
	return func(d *Discoverier) error {
		group, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return err
		}
		d.group = group
		return nil
	}
}

func WithInterval(interval time.Duration) Option {
	return func(d *Discoverier) error {
		d.interval = interval
		return nil
	}
}

// WithoutMulticast keeps the registry but opens no sockets; peers can only be
// added by hand.
func WithoutMulticast() Option {
	return func(d *Discoverier) error {
		d.multicast = false
		return nil
	}
}

type Discoverier struct {
	self      Identity
	group     *net.UDPAddr
	interval  time.Duration
	multicast bool

	mu      *sync.RWMutex
	devices map[string]models.DeviceInfo

	runMu    sync.Mutex
	running  bool
	port     uint16
	localIP  string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sendConn *net.UDPConn
	recvConn *net.UDPConn
}

func NewDiscoverier(self Identity, opts ...Option) (*Discoverier, error) {
	group, err := net.ResolveUDPAddr("udp4", DefaultGroup)
	if err != nil {
		return nil, err
	}

	d := &Discoverier{
		self:      self,
		group:     group,
		interval:  announceInterval,
		multicast: true,
		mu:        &sync.RWMutex{},
		devices:   make(map[string]models.DeviceInfo),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

func (d *Discoverier) Self() Identity {
	return d.self
}

// Start begins announcing port and listening for peers. Starting a running
// instance is a no-op.
func (d *Discoverier) Start(port uint16) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.running {
		return nil
	}

	d.port = port
	d.localIP = LocalIP()

	slog.Info("Starting discovery",
		"id", d.self.ID, "name", d.self.Name, "type", d.self.Type,
		"port", port, "localIP", d.localIP, "multicast", d.multicast)

	if !d.multicast {
		d.running = true
		return nil
	}

	recvConn, err := d.openRecvConn()
	if err != nil {
		return err
	}

	sendConn, err := d.openSendConn()
	if err != nil {
		recvConn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.recvConn = recvConn
	d.sendConn = sendConn
	d.running = true

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.announceLoop(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.listenLoop(ctx)
	}()

	return nil
}

func (d *Discoverier) openRecvConn() (*net.UDPConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, d.group)
	if err != nil {
		return nil, serrors.Network("join multicast group", err, d.group.String())
	}
	conn.SetReadBuffer(64 * 1024)

	// ListenMulticastUDP only joins on the default interface
	pc := ipv4.NewPacketConn(conn)
	ifaces, _ := net.Interfaces()
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		pc.JoinGroup(&iface, &net.UDPAddr{IP: d.group.IP})
	}

	return conn, nil
}

func (d *Discoverier) openSendConn() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, serrors.Network("open announce socket", err, "")
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		slog.Debug("Fail to set multicast TTL", "error", err)
	}
	// peers on the same host must hear us too
	if err := pc.SetMulticastLoopback(true); err != nil {
		slog.Debug("Fail to enable multicast loopback", "error", err)
	}

	return conn, nil
}

// Stop cancels both loops, closes the sockets and clears the registry.
func (d *Discoverier) Stop() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	// closing unblocks pending reads so the loops see the cancellation
	if d.recvConn != nil {
		d.recvConn.Close()
		d.recvConn = nil
	}
	if d.sendConn != nil {
		d.sendConn.Close()
		d.sendConn = nil
	}
	d.wg.Wait()

	d.running = false
	d.clear()

	slog.Info("Discovery stopped", "id", d.self.ID)
	return nil
}

// Port returns the port being announced, 0 when only listening.
func (d *Discoverier) Port() uint16 {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.port
}

func (d *Discoverier) Running() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.running
}

// LocalIP returns the address recorded at Start, or a fresh guess when not running.
func (d *Discoverier) LocalIP() string {
	d.runMu.Lock()
	ip := d.localIP
	d.runMu.Unlock()

	if ip == "" || ip == NoAddress {
		return LocalIP()
	}
	return ip
}

func (d *Discoverier) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.advertise()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.advertise(); err != nil {
				slog.Warn("Fail to send announcement", "error", err)
			}
		}
	}
}

func (d *Discoverier) advertise() error {
	// port 0 means listen only
	if d.port == 0 {
		return nil
	}

	anno := Announcement{
		ID:   d.self.ID,
		Name: d.self.Name,
		Type: d.self.Type,
		Port: d.port,
	}

	_, err := d.sendConn.WriteToUDP(anno.Encode(), d.group)
	return err
}

func (d *Discoverier) listenLoop(ctx context.Context) {
	buf := make([]byte, 1024)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.recvConn.SetReadDeadline(time.Now().Add(readTimeout))
		n, remoteAddr, err := d.recvConn.ReadFromUDP(buf)
		if err != nil {
			if serrors.IsTimeout(err) {
				continue
			}
			if serrors.IsClosed(err) || ctx.Err() != nil {
				return
			}
			slog.Debug("Discovery read error", "error", err)
			continue
		}

		d.handlePacket(buf[:n], remoteAddr)
	}
}

func (d *Discoverier) handlePacket(b []byte, from *net.UDPAddr) {
	anno, err := ParseAnnouncement(b)
	if err != nil {
		return
	}

	// avoid self discovery
	if anno.ID == d.self.ID {
		return
	}

	d.PutDiscovered(models.NewDeviceInfo(anno.ID, anno.Name, from.IP.String(), anno.Port, anno.Type))
}

// PutDiscovered inserts or refreshes a peer heard on the network.
func (d *Discoverier) PutDiscovered(info models.DeviceInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.devices[info.ID]; !known {
		slog.Info("Discovered device", "id", info.ID, "name", info.Name, "address", info.Address, "port", info.Port)
	}
	d.devices[info.ID] = info
}

func (d *Discoverier) AddDevice(info models.DeviceInfo) {
	slog.Info("Manually adding device", "id", info.ID, "address", info.Address, "port", info.Port)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[info.ID] = info
}

func (d *Discoverier) RemoveDevice(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.devices[id]; !ok {
		return serrors.ErrNotFound
	}
	delete(d.devices, id)
	return nil
}

func (d *Discoverier) UpdateDevice(info models.DeviceInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.devices[info.ID]; !ok {
		return serrors.ErrNotFound
	}
	d.devices[info.ID] = info
	return nil
}

func (d *Discoverier) Device(id string) (models.DeviceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.devices[id]
	if !ok {
		return models.DeviceInfo{}, serrors.ErrNotFound
	}
	return info, nil
}

// Devices returns a copy of the registry in no particular order.
func (d *Discoverier) Devices() []models.DeviceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	res := make([]models.DeviceInfo, 0, len(d.devices))
	for _, info := range d.devices {
		res = append(res, info)
	}
	return res
}

func (d *Discoverier) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.devices)
}
