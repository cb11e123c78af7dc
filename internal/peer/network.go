package peer

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10, used by carrier-grade NAT, Cloudflare WARP
// and Tailscale. Direct paths from inside it usually fail.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

type netInterface struct {
	name     string
	up       bool
	loopback bool
	addrs    []net.IP
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	return restrictedNetwork(systemInterfaces())
}

func systemInterfaces() []netInterface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	out := make([]netInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		ni := netInterface{
			name:     iface.Name,
			up:       iface.Flags&net.FlagUp != 0,
			loopback: iface.Flags&net.FlagLoopback != 0,
		}

		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ni.addrs = append(ni.addrs, v.IP)
				case *net.IPAddr:
					ni.addrs = append(ni.addrs, v.IP)
				}
			}
		}
		out = append(out, ni)
	}
	return out
}

func restrictedNetwork(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		if !iface.up || iface.loopback {
			continue
		}

		name := strings.ToLower(iface.name)
		if strings.Contains(name, "tun") || // OpenVPN and friends
			strings.Contains(name, "tap") ||
			strings.Contains(name, "wg") || // WireGuard
			strings.Contains(name, "ppp") ||
			strings.Contains(name, "warp") {
			return true
		}

		for _, ip := range iface.addrs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
