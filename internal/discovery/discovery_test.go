package discovery

import (
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/models"
)

func newTestDiscoverier(t *testing.T, opts ...Option) *Discoverier {
	t.Helper()
	self := Identity{ID: "device-self", Name: "self", Type: models.DeviceDesktop}
	d, err := NewDiscoverier(self, append([]Option{WithoutMulticast()}, opts...)...)
	if err != nil {
		t.Fatalf("NewDiscoverier: %v", err)
	}
	return d
}

func TestAnnouncementRoundTrip(t *testing.T) {
	anno := Announcement{ID: "device-abc", Name: "Office PC", Type: models.DeviceDesktop, Port: 9001}

	got := string(anno.Encode())
	want := "STATIONULI:device-abc:Office PC:desktop:9001:announce"
	if got != want {
		t.Fatalf("Encode() = %q; want %q", got, want)
	}

	parsed, err := ParseAnnouncement([]byte(got))
	if err != nil {
		t.Fatalf("ParseAnnouncement: %v", err)
	}
	if parsed != anno {
		t.Errorf("ParseAnnouncement = %+v; want %+v", parsed, anno)
	}
}

func TestParseAnnouncementNameWithColons(t *testing.T) {
	parsed, err := ParseAnnouncement([]byte("STATIONULI:device-1:host:with:colons:mobile:8080:announce"))
	if err != nil {
		t.Fatalf("ParseAnnouncement: %v", err)
	}
	if parsed.Name != "host:with:colons" {
		t.Errorf("Name = %q", parsed.Name)
	}
	if parsed.Type != models.DeviceMobile || parsed.Port != 8080 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseAnnouncementRejectsGarbage(t *testing.T) {
	inputs := []string{
		"",
		"hello world",
		"STATIONULI:device-1:name:desktop:8080",
		"STATIONULI:device-1:name:desktop:8080:goodbye",
		"LOCALSEND:device-1:name:desktop:8080:announce",
		"STATIONULI::name:desktop:8080:announce",
		"STATIONULI:device-1:name:desktop:notaport:announce",
		"STATIONULI:device-1:name:desktop:70000:announce",
		"STATIONULI:device-1:name:desktop:0:announce",
		`{"alias":"json"}`,
	}

	for _, in := range inputs {
		if _, err := ParseAnnouncement([]byte(in)); err == nil {
			t.Errorf("ParseAnnouncement(%q) succeeded; want error", in)
		}
	}
}

func TestParseAnnouncementUnknownType(t *testing.T) {
	parsed, err := ParseAnnouncement([]byte("STATIONULI:device-1:tv:television:8080:announce"))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Type != models.DeviceUnknown {
		t.Errorf("Type = %q; want unknown", parsed.Type)
	}
}

func TestGenDeviceID(t *testing.T) {
	start := time.Unix(1700000000, 0)

	a := GenDeviceID("host-a", start)
	if a != GenDeviceID("host-a", start) {
		t.Error("GenDeviceID is not deterministic")
	}
	if !strings.HasPrefix(a, "device-") {
		t.Errorf("GenDeviceID = %q; want device- prefix", a)
	}
	if a == GenDeviceID("host-b", start) {
		t.Error("different hosts produced the same id")
	}
	if a == GenDeviceID("host-a", start.Add(time.Second)) {
		t.Error("different start times produced the same id")
	}
	if strings.Contains(a, ":") {
		t.Error("device id must not contain the record delimiter")
	}
}

func TestRegistryAddRemove(t *testing.T) {
	d := newTestDiscoverier(t)
	dev := models.NewDeviceInfo("device-1", "phone", "192.168.1.20", 9001, models.DeviceMobile)

	d.AddDevice(dev)
	if !containsDevice(d.Devices(), dev) {
		t.Fatalf("Devices() = %v; want it to contain %v", d.Devices(), dev)
	}

	if err := d.RemoveDevice(dev.ID); err != nil {
		t.Fatalf("RemoveDevice: %v", err)
	}
	if containsDevice(d.Devices(), dev) {
		t.Fatal("device still present after RemoveDevice")
	}

	if err := d.RemoveDevice(dev.ID); !errors.Is(err, serrors.ErrNotFound) {
		t.Errorf("RemoveDevice(unknown) = %v; want ErrNotFound", err)
	}
}

func TestRegistryUpdate(t *testing.T) {
	d := newTestDiscoverier(t)
	dev := models.NewDeviceInfo("device-1", "phone", "192.168.1.20", 9001, models.DeviceMobile)

	if err := d.UpdateDevice(dev); !errors.Is(err, serrors.ErrNotFound) {
		t.Fatalf("UpdateDevice(unknown) = %v; want ErrNotFound", err)
	}

	d.AddDevice(dev)
	dev.Name = "renamed"
	dev.Port = 9100
	if err := d.UpdateDevice(dev); err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}

	got, err := d.Device(dev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != dev {
		t.Errorf("Device() = %+v; want %+v", got, dev)
	}
}

func TestDevicesReturnsCopy(t *testing.T) {
	d := newTestDiscoverier(t)
	d.AddDevice(models.NewDeviceInfo("device-1", "a", "10.0.0.1", 1, models.DeviceDesktop))

	snap := d.Devices()
	snap[0].Name = "mutated"

	got, _ := d.Device("device-1")
	if got.Name != "a" {
		t.Error("mutating the snapshot changed the registry")
	}
}

func TestHandlePacketIgnoresSelf(t *testing.T) {
	d := newTestDiscoverier(t)
	from := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 5354}

	self := Announcement{ID: d.Self().ID, Name: "self", Type: models.DeviceDesktop, Port: 9001}
	d.handlePacket(self.Encode(), from)
	if len(d.Devices()) != 0 {
		t.Fatal("own announcement was registered")
	}

	peer := Announcement{ID: "device-peer", Name: "peer", Type: models.DeviceMobile, Port: 9002}
	d.handlePacket(peer.Encode(), from)
	d.handlePacket([]byte("garbage"), from)

	devs := d.Devices()
	if len(devs) != 1 {
		t.Fatalf("Devices() = %v; want exactly the peer", devs)
	}
	if devs[0].Address != "192.168.1.50" {
		t.Errorf("Address = %q; want observed source address", devs[0].Address)
	}
	if devs[0].Port != 9002 || devs[0].DeviceType != models.DeviceMobile {
		t.Errorf("device = %+v", devs[0])
	}
}

func TestStopClearsRegistry(t *testing.T) {
	d := newTestDiscoverier(t)

	if err := d.Start(9001); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("Running() = false after Start")
	}

	d.AddDevice(models.NewDeviceInfo("device-1", "a", "10.0.0.1", 1, models.DeviceDesktop))
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Running() {
		t.Error("Running() = true after Stop")
	}
	if len(d.Devices()) != 0 {
		t.Error("registry not cleared by Stop")
	}

	// stopping twice is harmless
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

// Needs a network that delivers multicast to the loopback host.
func TestMulticastAnnounce(t *testing.T) {
	if os.Getenv("STATIONULI_MULTICAST_TESTS") == "" {
		t.Skip("set STATIONULI_MULTICAST_TESTS=1 to run")
	}

	group := "239.255.77.77:15354"
	a, err := NewDiscoverier(Identity{ID: "device-a", Name: "a", Type: models.DeviceDesktop},
		WithGroup(group), WithInterval(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewDiscoverier(Identity{ID: "device-b", Name: "b", Type: models.DeviceMobile},
		WithGroup(group), WithInterval(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Start(9001); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()
	if err := b.Start(9002); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := a.Device("device-b"); err == nil {
			if _, err := a.Device("device-a"); err == nil {
				t.Fatal("a registered itself")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("a never heard b's announcement")
}

func containsDevice(devs []models.DeviceInfo, want models.DeviceInfo) bool {
	for _, d := range devs {
		if d == want {
			return true
		}
	}
	return false
}
