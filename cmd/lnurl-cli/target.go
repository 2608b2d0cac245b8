package main

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// normalizeTarget turns the command argument into a service base URL. It
// accepts a full URL, [ipv6]:port, ipv4:port or a bare IP address. Addresses
// without a scheme are served over plain http.
func normalizeTarget(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", fmt.Errorf("invalid URL %q: %w", arg, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("missing host in %q", arg)
		}
		return arg, nil
	}

	if host, port, err := net.SplitHostPort(arg); err == nil {
		ip := net.ParseIP(host)
		if ip == nil {
			return "", fmt.Errorf("invalid URL or IP address: %s", arg)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", fmt.Errorf("invalid port in %s", arg)
		}
		return "http://" + net.JoinHostPort(ip.String(), port), nil
	}

	ip := net.ParseIP(strings.Trim(arg, "[]"))
	if ip == nil {
		return "", fmt.Errorf("invalid URL or IP address: %s", arg)
	}
	if ip.To4() == nil {
		return "http://[" + ip.String() + "]", nil
	}

	return "http://" + ip.String(), nil
}
