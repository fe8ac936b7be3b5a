// Package endpoint defines the canonical proxy endpoint type and its
// string codec. An endpoint is identified by its "host:port" form; that
// string is the registry key, so parsing and formatting must round-trip
// exactly.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is a candidate proxy address. Immutable once created; two
// endpoints are the same record iff their String() forms are equal.
type Endpoint struct {
	Host string
	Port int
}

// String returns the canonical "host:port" form. IPv6 hosts are
// bracketed so the result parses back with net.SplitHostPort.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Parse converts a "host:port" string into an Endpoint.
func Parse(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: bad port: %w", s, err)
	}
	if host == "" || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: host or port out of range", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseAll decodes a bulk range result, dropping entries that no longer
// parse. Store contents come from Add, so in practice nothing is dropped;
// the filter guards against keys written by other tools sharing the set.
func ParseAll(keys []string) []Endpoint {
	out := make([]Endpoint, 0, len(keys))
	for _, k := range keys {
		e, err := Parse(k)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Valid reports whether s is a well-formed "host:port" candidate. Used by
// the registry to reject malformed input before it reaches the store.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
