package discovery

import (
	"net"

	"github.com/trueLoving/Stationuli/internal/utils"
)

// NoAddress is returned by LocalIP when no usable address was found.
const NoAddress = "0.0.0.0"

var (
	routeProbe = "8.8.8.8:80"

	// private gateways tried when the routed address belongs to an
	// emulator's NAT network
	fallbackProbes = []string{"192.168.1.1:80", "192.168.0.1:80", "10.0.2.2:80"}

	emulatorAddr = net.IPv4(10, 0, 2, 15)
)

// LocalIP makes a best-effort guess at the address peers can reach us on.
// The result is only advertised, never used to gate behaviour.
func LocalIP() string {
	return localIP(routedIP)
}

func localIP(route func(probe string) net.IP) string {
	ip := route(routeProbe)
	if ip != nil && ip.Equal(emulatorAddr) {
		ip = nil
		for _, probe := range fallbackProbes {
			cand := route(probe)
			if usable(cand) && !isEmulatorNet(cand) {
				ip = cand
				break
			}
		}
	}
	if usable(ip) {
		return ip.String()
	}

	ips, err := utils.GetMyIPv4Addr()
	if err == nil && len(ips) > 0 {
		return ips[0].String()
	}

	return NoAddress
}

// routedIP opens a UDP socket "connected" to probe and reads back the local
// endpoint the kernel picked. No packet is sent.
func routedIP(probe string) net.IP {
	conn, err := net.Dial("udp4", probe)
	if err != nil {
		return nil
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	return addr.IP.To4()
}

func usable(ip net.IP) bool {
	return ip != nil && !ip.IsLoopback() && !ip.IsUnspecified()
}

func isEmulatorNet(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4[0] == 10 && v4[1] == 0 && v4[2] == 2
}
