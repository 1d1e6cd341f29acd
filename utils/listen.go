package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NormalizeListenAddr turns a bare port into a host:port address.
// A missing host becomes localhost.
func NormalizeListenAddr(addr string) (string, error) {
	if !strings.Contains(addr, ":") {
		port, err := strconv.Atoi(addr)
		if err != nil {
			return "", fmt.Errorf("invalid port: %v", err)
		}
		addr = fmt.Sprintf(":%d", port)
	}

	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return addr, nil
}

// IsListenAddrAvailable reports whether addr can be bound right now.
func IsListenAddrAvailable(addr string) bool {
	Verbose("Checking if %s is available", addr)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		Verbose("error: %v", err)
		return false
	}

	defer listener.Close()
	return true
}
