package utils

import (
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// WaitForSignal returns a channel that fires on interrupt or termination.
func WaitForSignal() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)

	return ch
}

func ForEachAsync[T any](arr []T, wg *sync.WaitGroup, do func(value T)) {
	for _, val := range arr {
		wg.Add(1)
		go func(val T) {
			defer wg.Done()

			do(val)
		}(val)
	}
}

// GetMyIPv4Addr returns the private IPv4 addresses of every running
// interface. Loopback, IPv6 and public addresses are skipped.
func GetMyIPv4Addr() ([]net.IP, error) {
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	res := make([]net.IP, 0)
	for _, intf := range intfs {
		if intf.Flags&net.FlagRunning == 0 {
			continue
		}

		addrs, _ := intf.Addrs()
		for idx := range addrs {
			ip, _, err := net.ParseCIDR(addrs[idx].String())
			if err != nil {
				continue
			}
			if ip.To4() != nil && !ip.IsLoopback() && ip.IsPrivate() {
				res = append(res, ip.To4())
			}
		}
	}
	return res, nil
}
