package utils

import (
	"net"
	"strings"
)

// AdvertisedIPv4 returns the IPv4 address to advertise in the server URL:
// the first address on an up wlan/eth-style interface, then any up
// non-loopback interface, then the outbound-route address, then loopback.
func AdvertisedIPv4() string {
	if ip := lanIPv4(); ip != "" {
		return ip
	}
	if ip := outboundIPv4(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

func lanIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, strict := range []bool{true, false} {
		for _, ifc := range ifaces {
			if !usableInterface(ifc.Name, ifc.Flags, strict) {
				continue
			}
			addrs, err := ifc.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipnet, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				if ip := ipnet.IP.To4(); ip != nil && !ip.IsLoopback() {
					return ip.String()
				}
			}
		}
	}
	return ""
}

// usableInterface reports whether an interface is a candidate for the
// advertised address. strict restricts to WiFi/ethernet naming schemes
// (wlan0, eth0, en0, wlp2s0).
func usableInterface(name string, flags net.Flags, strict bool) bool {
	if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
		return false
	}
	if !strict {
		return true
	}
	for _, prefix := range []string{"wlan", "wl", "eth", "en"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// outboundIPv4 asks the OS which local address would route toward the
// internet. UDP dial only selects a source address; no packet is sent.
func outboundIPv4() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	ip := addr.IP.To4()
	if ip == nil {
		return ""
	}
	return ip.String()
}
