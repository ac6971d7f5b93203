package util

import (
	"net"
	"strconv"

	"github.com/go-pantheon/fabrica-util/errors"
)

var ErrInvalidHostPort = errors.New("invalid host:port")

// Extract returns a host:port other processes can dial. A wildcard host is
// replaced by an internal address, and the port is taken from lis when it is
// given so that ":0" binds report the real port.
func Extract(hostPort string, lis net.Listener) (string, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidHostPort, "%s. %v", hostPort, err)
	}

	if lis != nil {
		if addr, ok := lis.Addr().(*net.TCPAddr); ok {
			port = strconv.Itoa(addr.Port)
		} else if _, p, splitErr := net.SplitHostPort(lis.Addr().String()); splitErr == nil {
			port = p
		}
	}

	if len(host) > 0 && host != "0.0.0.0" && host != "[::]" && host != "::" {
		return net.JoinHostPort(host, port), nil
	}

	if ip := InternalIP(); ip != "" {
		return net.JoinHostPort(ip, port), nil
	}

	return net.JoinHostPort("127.0.0.1", port), nil
}

// InternalIP returns the first private IPv4 address of an up interface, or
// "" when there is none.
func InternalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}

			if isPrivateIP(ipnet.IP.String()) {
				return ipnet.IP.String()
			}
		}
	}

	return ""
}

func isPrivateIP(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	return ip.IsPrivate()
}

// RemoteAddr is the peer address of conn, or "-" for streams without one.
func RemoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return "-"
	}

	return conn.RemoteAddr().String()
}
