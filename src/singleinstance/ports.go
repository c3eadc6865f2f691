package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550

	PortStartEnvVar = "SINGLEINSTANCE_PORT_START"
	PortEndEnvVar   = "SINGLEINSTANCE_PORT_END"
)

// PortRange returns the effective inclusive TCP port range. Unset or invalid
// values fall back to defaults; the result is clamped to [1024, 65535].
func PortRange() (int, int) {
	start := envPort(PortStartEnvVar, defaultPortStart)
	end := envPort(PortEndEnvVar, defaultPortEnd)
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envPort(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
