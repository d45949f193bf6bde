package fulfillment

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ProtocolHTTP   = "http"
	ProtocolHTTPS  = "https"
	ProtocolSOCKS5 = "socks5"
)

var (
	socks5Ports = []string{"12324", "63267", "63331", "63561", "15324", "22326", "7777", "22324", "22325", "10324", "11324", "13324", "14324"}
	httpPorts   = []string{"12323", "63330", "63266", "63560", "10323", "11323", "7777", "12325", "12326", "13323", "14323", "15323", "22323"}
)

// normalizeProtocol lowercases p and checks it is one the gateway serves
func normalizeProtocol(p string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(p)); v {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS5:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProtocol, p)
	}
}

// pool returns the predefined ports for protocol
func pool(protocol string) []string {
	if protocol == ProtocolSOCKS5 {
		return socks5Ports
	}
	return httpPorts
}

// defaultPort is the head of the protocol's pool
func defaultPort(protocol string) string {
	return pool(protocol)[0]
}

func parsePort(p string) (string, error) {
	p = strings.TrimSpace(p)
	n, err := strconv.Atoi(p)
	if err != nil || n < 0 || n > 65535 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPort, p)
	}
	return strconv.Itoa(n), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
