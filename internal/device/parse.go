package device

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	devicesHeader      = "List of devices"
	daemonMessageToken = "*"

	tlsConnectService = "._adb-tls-connect._tcp"
	mdnsPrefix        = "adb-"
	mdnsSuffix        = "._tcp"
)

// ParseDeviceList parses the output of `adb devices -l` into observations in
// the order they appear. Lines that cannot be parsed are skipped.
func ParseDeviceList(output string) []Observation {
	var observations []Observation

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, devicesHeader) || strings.HasPrefix(trimmed, daemonMessageToken) {
			continue
		}
		if obs, ok := ParseDeviceLine(trimmed); ok {
			observations = append(observations, obs)
		}
	}

	return observations
}

// ParseDeviceLine parses one `<rawId> <state> [key:value ...]` line.
func ParseDeviceLine(line string) (Observation, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Observation{}, false
	}

	obs := Observation{
		RawID: fields[0],
		State: ParseState(fields[1]),
	}

	for _, field := range fields[2:] {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch key {
		case "model":
			obs.Model = strings.ReplaceAll(value, "_", " ")
		case "product":
			obs.Product = value
		case "transport_id":
			obs.TransportID = value
		}
	}

	obs.Connection = ClassifyConnection(obs.RawID, obs.TransportID)
	return obs, true
}

// ClassifyConnection decides the transport of a raw adb id.
// Wireless-debug service names win over ip:port, everything else is USB.
func ClassifyConnection(rawID, transportID string) Connection {
	if strings.Contains(rawID, tlsConnectService) ||
		(strings.HasPrefix(rawID, mdnsPrefix) && strings.Contains(rawID, mdnsSuffix)) {
		return WirelessDebug(transportID)
	}

	if ip, port, ok := splitIPv4Port(rawID); ok {
		return TCPIP(ip, port, transportID)
	}

	return USB(transportID)
}

func splitIPv4Port(s string) (string, int, bool) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", 0, false
	}
	host, portStr := s[:idx], s[idx+1:]
	if !isIPv4(host) {
		return "", 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, false
	}
	return host, int(port), true
}

func isIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
		if n, _ := strconv.Atoi(part); n > 255 {
			return false
		}
	}
	return true
}

// ParseReverseList parses `adb reverse --list`. The first two tcp:<port>
// tokens of a line are taken as local and remote.
func ParseReverseList(output, deviceID string) []PortForward {
	var forwards []PortForward

	for _, line := range strings.Split(output, "\n") {
		var ports []int
		for _, field := range strings.Fields(line) {
			if port, ok := parseTCPSpec(field); ok {
				ports = append(ports, port)
			}
		}
		if len(ports) < 2 {
			continue
		}
		forwards = append(forwards, NewPortForward(deviceID, DirectionReverse, ports[0], ports[1]))
	}

	return forwards
}

// ParseForwardList parses `adb forward --list` lines of the form
// `<serial> <localSpec> <remoteSpec>`. When deviceID is set, lines for other
// serials are skipped.
func ParseForwardList(output, deviceID string) []PortForward {
	var forwards []PortForward

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if deviceID != "" && fields[0] != deviceID {
			continue
		}
		local, ok := parseTCPSpec(fields[1])
		if !ok {
			continue
		}
		remote, ok := parseTCPSpec(fields[2])
		if !ok {
			continue
		}
		forwards = append(forwards, NewPortForward(fields[0], DirectionForward, local, remote))
	}

	return forwards
}

// NewPortForward builds a tcp to tcp port forward.
func NewPortForward(deviceID string, direction Direction, local, remote int) PortForward {
	return PortForward{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Direction:  direction,
		LocalPort:  local,
		RemotePort: remote,
		LocalSpec:  TCPSpec(local),
		RemoteSpec: TCPSpec(remote),
	}
}

// TCPSpec formats a port as an adb socket spec.
func TCPSpec(port int) string {
	return "tcp:" + strconv.Itoa(port)
}

func parseTCPSpec(spec string) (int, bool) {
	rest, ok := strings.CutPrefix(spec, "tcp:")
	if !ok {
		return 0, false
	}
	port, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return 0, false
	}
	return int(port), true
}
