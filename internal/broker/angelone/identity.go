package angelone

import (
	"net"
)

// SmartAPI rejects requests that do not carry these client-identity headers.
const (
	fallbackLocalIP  = "127.0.0.1"
	fallbackPublicIP = "106.193.147.98"
	fallbackMAC      = "00:00:00:00:00:00"
)

type identity struct {
	localIP, publicIP, mac string
}

func resolveIdentity(localIP, publicIP, mac string) identity {
	id := identity{localIP: localIP, publicIP: publicIP, mac: mac}
	if id.localIP == "" || id.mac == "" {
		ip, hw := firstInterface()
		if id.localIP == "" {
			id.localIP = ip
		}
		if id.mac == "" {
			id.mac = hw
		}
	}
	if id.localIP == "" {
		id.localIP = fallbackLocalIP
	}
	if id.mac == "" {
		id.mac = fallbackMAC
	}
	if id.publicIP == "" {
		id.publicIP = fallbackPublicIP
	}
	return id
}

func (id identity) headers(apiKey string) map[string]string {
	return map[string]string{
		"Accept":           "application/json",
		"X-UserType":       "USER",
		"X-SourceID":       "WEB",
		"X-ClientLocalIP":  id.localIP,
		"X-ClientPublicIP": id.publicIP,
		"X-MACAddress":     id.mac,
		"X-PrivateKey":     apiKey,
	}
}

// firstInterface returns the IPv4 address and MAC of the first up,
// non-loopback interface.
func firstInterface() (ip, mac string) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", ""
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok {
				if v4 := n.IP.To4(); v4 != nil {
					return v4.String(), ifc.HardwareAddr.String()
				}
			}
		}
	}
	return "", ""
}
