package session

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used whenever a requested port cannot be parsed.
const DefaultPort = 25565

// AuthOffline connects without account verification.
const AuthOffline = "offline"

// Options configures the remote connection of a session. The last values
// supplied win.
type Options struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Version  string `json:"version" yaml:"version"` // empty selects the version automatically
	Auth     string `json:"auth" yaml:"auth"`
}

// Addr returns host:port for dialing.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Overrides are the raw, user-supplied fields of a start request. Empty
// fields keep the current value, except Port, which falls back to
// DefaultPort when it does not parse.
type Overrides struct {
	Host     string
	Port     string
	Username string
	Version  string
}

// Merge applies ov on top of o.
func (o Options) Merge(ov Overrides) Options {
	if host := strings.TrimSpace(ov.Host); host != "" {
		o.Host = host
	}
	o.Port = ParsePort(ov.Port)
	if username := strings.TrimSpace(ov.Username); username != "" {
		o.Username = username
	}
	if version := strings.TrimSpace(ov.Version); version != "" {
		if strings.EqualFold(version, "auto") {
			version = ""
		}
		o.Version = version
	}
	return o
}

// ParsePort returns the TCP port in s, or DefaultPort if s is not a valid
// port number.
func ParsePort(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 || n > 65535 {
		return DefaultPort
	}
	return n
}
