package utils

import (
	"errors"
	"net"
	"net/url"
	"strconv"
)

// Parses a string of the form tcp://<host>:<port> and returns the host and port
// as a string. If the port is not specified, it defaults to 8080.
func ParseHttpUrl(urlstr string) (string, error) {
	return parseTcpUrl(urlstr, "8080")
}

// Parses a string of the form tcp://<host>:<port> and returns the
// host and port as a string, or an error if the string is not a valid URL.
// If the port is not specified, it defaults to 9090.
func ParseGrpcUrl(urlstr string) (string, error) {
	return parseTcpUrl(urlstr, "9090")
}

func parseTcpUrl(urlstr, defaultPort string) (string, error) {
	uri, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}

	if uri.Scheme != "tcp" {
		return "", errors.New("Unsupported protocol: " + uri.Scheme)
	}

	if uri.Port() == "" {
		return net.JoinHostPort(uri.Hostname(), defaultPort), nil
	}

	return uri.Host, nil
}

// Returns the port of a tcp://<host>:<port> listen address, using the
// HTTP default port when omitted.
func HttpUrlPort(urlstr string) (int, error) {
	host, err := ParseHttpUrl(urlstr)
	if err != nil {
		return 0, err
	}

	_, port, err := net.SplitHostPort(host)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(port)
}
