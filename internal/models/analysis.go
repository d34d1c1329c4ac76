package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Severity grades a detected anomaly
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// PairSeparator joins the two sides of a conversation or stream label
const PairSeparator = " ↔ "

// BasicStats holds the capture-wide counters computed by the service
type BasicStats struct {
	TotalPackets     int64   `json:"total_packets"`
	TotalBytes       int64   `json:"total_bytes"`
	DurationSeconds  float64 `json:"duration_seconds"`
	PacketsPerSecond float64 `json:"packets_per_second,omitempty"`
	ThroughputPPS    float64 `json:"throughput_pps,omitempty"`
	ThroughputBPS    float64 `json:"throughput_bps,omitempty"`
	AvgPacketSize    float64 `json:"avg_packet_size,omitempty"`
	StartTime        string  `json:"start_time,omitempty"`
	EndTime          string  `json:"end_time,omitempty"`
}

// Rate returns the packet rate, whichever name the service used for it
func (s *BasicStats) Rate() float64 {
	if s.PacketsPerSecond != 0 {
		return s.PacketsPerSecond
	}
	return s.ThroughputPPS
}

// ProtocolShare is one entry of the protocol distribution
type ProtocolShare struct {
	Protocol   string  `json:"-"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ProtocolDistribution is the protocol -> share mapping in the order the
// service emitted its keys. Chart colours are assigned by position, so the
// order has to survive decoding.
type ProtocolDistribution []ProtocolShare

func (d *ProtocolDistribution) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("protocol_distribution: expected object, got %v", tok)
	}

	out := make(ProtocolDistribution, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var share ProtocolShare
		if err := dec.Decode(&share); err != nil {
			return fmt.Errorf("protocol_distribution[%q]: %w", key, err)
		}
		share.Protocol = key
		out = append(out, share)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}

// IPConversation is traffic between an unordered pair of addresses.
// The service sends the pair either as "ips" or as a pre-joined "endpoints" label.
type IPConversation struct {
	IPs       []string `json:"ips,omitempty"`
	Endpoints string   `json:"endpoints,omitempty"`
	Packets   int64    `json:"packets"`
	Bytes     int64    `json:"bytes"`
}

// Addresses returns the two addresses in service order. ok is false when the
// entry does not carry exactly two.
func (c IPConversation) Addresses() (a, b string, ok bool) {
	if len(c.IPs) == 2 {
		return c.IPs[0], c.IPs[1], c.IPs[0] != "" && c.IPs[1] != ""
	}
	if len(c.IPs) == 0 && c.Endpoints != "" {
		parts := strings.Split(c.Endpoints, strings.TrimSpace(PairSeparator))
		if len(parts) == 2 {
			a, b = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			return a, b, a != "" && b != ""
		}
	}
	return "", "", false
}

// TCPStream is a reassembled TCP stream between two endpoint labels
type TCPStream struct {
	Endpoints []string `json:"endpoints"`
	Packets   int64    `json:"packets"`
	Bytes     int64    `json:"bytes"`
	Ports     []int    `json:"ports"`
}

// Valid reports whether the stream has both endpoints and at least one port
func (s TCPStream) Valid() bool {
	return len(s.Endpoints) == 2 && len(s.Ports) > 0
}

type Anomaly struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	SourceIP    string   `json:"source_ip,omitempty"`
}

// ConnectionKPIs summarises TCP handshake outcomes
type ConnectionKPIs struct {
	Established int64   `json:"tcp_established_connections"`
	Failed      int64   `json:"tcp_failed_connections"`
	SuccessRate float64 `json:"connection_success_rate"`
}

// TCPAnalysis is the service's raw TCP connection breakdown. Older service
// builds send it instead of kpis.
type TCPAnalysis struct {
	TotalConnections      int64   `json:"total_connections"`
	SuccessfulConnections int64   `json:"successful_connections"`
	FailedConnections     int64   `json:"failed_connections"`
	SuccessRate           float64 `json:"success_rate"`
	TotalTCPPackets       int64   `json:"total_tcp_packets"`
}

// AnalysisResult is the service-computed summary of one capture file.
// Every field is optional; a nil or empty field means the breakdown is absent.
type AnalysisResult struct {
	BasicStats           *BasicStats          `json:"basic_stats,omitempty"`
	ProtocolDistribution ProtocolDistribution `json:"protocol_distribution,omitempty"`
	IPConversations      []IPConversation     `json:"ip_conversations,omitempty"`
	TCPStreams           []TCPStream          `json:"tcp_streams,omitempty"`
	DNSAnalysis          json.RawMessage      `json:"dns_analysis,omitempty"`
	Anomalies            []Anomaly            `json:"anomalies,omitempty"`
	KPIs                 *ConnectionKPIs      `json:"kpis,omitempty"`
	TCPAnalysis          *TCPAnalysis         `json:"tcp_analysis,omitempty"`
	Timeline             []TimelineSample     `json:"timeline,omitempty"`

	// Skipped names the sections that were present but could not be decoded
	Skipped []string `json:"-"`
}

// UnmarshalJSON decodes each section on its own. A section that does not
// decode is left absent and named in Skipped.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	var out AnalysisResult
	skipped, err := decodeSections(data, []section{
		{"basic_stats", into(&out.BasicStats)},
		{"protocol_distribution", into(&out.ProtocolDistribution)},
		{"ip_conversations", into(&out.IPConversations)},
		{"tcp_streams", into(&out.TCPStreams)},
		{"dns_analysis", into(&out.DNSAnalysis)},
		{"anomalies", into(&out.Anomalies)},
		{"kpis", into(&out.KPIs)},
		{"tcp_analysis", into(&out.TCPAnalysis)},
		{"timeline", into(&out.Timeline)},
	})
	if err != nil {
		return err
	}
	out.Skipped = skipped
	*a = out
	return nil
}

// UploadResponse is returned by both the upload and the current-analysis calls
type UploadResponse struct {
	Filename string          `json:"filename"`
	Message  string          `json:"message,omitempty"`
	Analysis *AnalysisResult `json:"analysis"`
}

// FilterResult is the analysis of the capture restricted to one protocol.
// A non-empty Error means the protocol matched no traffic; it is a business
// outcome, not a transport failure.
type FilterResult struct {
	Protocol        string           `json:"protocol"`
	PacketCount     int64            `json:"packet_count"`
	BasicStats      *BasicStats      `json:"basic_stats,omitempty"`
	IPConversations []IPConversation `json:"ip_conversations,omitempty"`
	Timeline        []TimelineSample `json:"timeline,omitempty"`
	Error           string           `json:"error,omitempty"`

	Skipped []string `json:"-"`
}

// UnmarshalJSON reads the packet count from packet_count or
// filtered_packet_count. Breakdown sections are decoded as in AnalysisResult.
func (r *FilterResult) UnmarshalJSON(data []byte) error {
	var head struct {
		Protocol            string `json:"protocol"`
		PacketCount         *int64 `json:"packet_count"`
		FilteredPacketCount *int64 `json:"filtered_packet_count"`
		Error               string `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	out := FilterResult{Protocol: head.Protocol, Error: head.Error}
	switch {
	case head.PacketCount != nil && *head.PacketCount != 0:
		out.PacketCount = *head.PacketCount
	case head.FilteredPacketCount != nil:
		out.PacketCount = *head.FilteredPacketCount
	}

	skipped, err := decodeSections(data, []section{
		{"basic_stats", into(&out.BasicStats)},
		{"ip_conversations", into(&out.IPConversations)},
		{"timeline", into(&out.Timeline)},
	})
	if err != nil {
		return err
	}
	out.Skipped = skipped
	*r = out
	return nil
}

type section struct {
	key    string
	decode func(json.RawMessage) error
}

// into returns a decoder that only writes dst when msg decodes cleanly
func into[T any](dst *T) func(json.RawMessage) error {
	return func(msg json.RawMessage) error {
		var v T
		if err := json.Unmarshal(msg, &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// decodeSections decodes the sections present in the object data and
// returns the keys of those that failed, in the order given
func decodeSections(data []byte, sections []section) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var skipped []string
	for _, s := range sections {
		msg, ok := raw[s.key]
		if !ok {
			continue
		}
		if err := s.decode(msg); err != nil {
			skipped = append(skipped, s.key)
		}
	}
	return skipped, nil
}

// Empty reports whether the filter matched nothing
func (r *FilterResult) Empty() bool {
	return r.Error != ""
}

// Protocol is one of the protocols the service can filter on
type Protocol struct {
	Name        string
	Description string
}

var Protocols = []Protocol{
	{Name: "TCP", Description: "Transmission Control Protocol"},
	{Name: "UDP", Description: "User Datagram Protocol"},
	{Name: "DNS", Description: "Domain Name System"},
	{Name: "HTTP", Description: "HyperText Transfer Protocol"},
	{Name: "ICMP", Description: "Internet Control Message Protocol"},
}

// SupportedProtocol reports whether name (already upper-cased) can be filtered on
func SupportedProtocol(name string) bool {
	for _, p := range Protocols {
		if p.Name == name {
			return true
		}
	}
	return false
}
