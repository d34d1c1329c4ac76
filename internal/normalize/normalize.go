// Package normalize reshapes analysis payloads into the fixed view models the
// screens render. Every function is pure and treats missing input as an
// absent section: it returns nil rather than failing.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/netty/analyst/internal/models"
)

const (
	DashboardConversations = 10
	FilterConversations    = 15
	DashboardStreams       = 10

	bytesPerKB = 1024
	bytesPerMB = 1024 * 1024
)

// Palette colours chart entries by position
var Palette = []string{"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#06B6D4"}

// ColorFor returns the palette colour of the i-th chart entry
func ColorFor(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

type ChartEntry struct {
	Label      string
	Value      int64
	Percentage float64
	Color      string
}

type ConversationRow struct {
	Label   string
	Packets int64
	Bytes   int64
	Size    string
	// Share is Bytes relative to the largest conversation, in [0, 1]
	Share float64
}

type TimelinePoint struct {
	DisplayTime string
	PacketCount int64
}

type StreamRow struct {
	Endpoints string
	Packets   int64
	Size      string
	Ports     string
}

type AnomalyRow struct {
	Type        string
	Description string
	Severity    models.Severity
	SourceIP    string
}

type StatsCard struct {
	TotalPackets string
	TotalBytes   string
	Duration     string
	Rate         string
}

type KPICard struct {
	Established int64
	Failed      int64
	SuccessRate float64
}

type DomainCount struct {
	Domain string
	Count  int64
}

type DNSSummary struct {
	TotalQueries   int64
	TotalResponses int64
	UniqueDomains  int64
	TopDomains     []DomainCount
}

// FormatMB renders a byte count in megabytes with two decimals
func FormatMB(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/bytesPerMB)
}

// FormatKB renders a byte count in kilobytes with two decimals
func FormatKB(bytes int64) string {
	return fmt.Sprintf("%.2f KB", float64(bytes)/bytesPerKB)
}

// FormatCount renders n with thousands separators
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ProtocolSeries keeps the distribution's own order; it is not sorted by value
func ProtocolSeries(dist models.ProtocolDistribution) []ChartEntry {
	if len(dist) == 0 {
		return nil
	}
	out := make([]ChartEntry, 0, len(dist))
	for i, share := range dist {
		out = append(out, ChartEntry{
			Label:      share.Protocol,
			Value:      share.Count,
			Percentage: share.Percentage,
			Color:      ColorFor(i),
		})
	}
	return out
}

// Conversations returns the first n well-formed conversations labelled
// "a ↔ b". The service sends them sorted, so input order is kept.
func Conversations(convs []models.IPConversation, n int) []ConversationRow {
	if len(convs) == 0 || n <= 0 {
		return nil
	}

	var largest int64
	for _, c := range convs {
		if c.Bytes > largest {
			largest = c.Bytes
		}
	}

	var out []ConversationRow
	for _, c := range convs {
		if len(out) == n {
			break
		}
		a, b, ok := c.Addresses()
		if !ok {
			continue
		}
		row := ConversationRow{
			Label:   a + models.PairSeparator + b,
			Packets: c.Packets,
			Bytes:   c.Bytes,
			Size:    FormatKB(c.Bytes),
		}
		if largest > 0 {
			row.Share = float64(c.Bytes) / float64(largest)
		}
		out = append(out, row)
	}
	return out
}

// Timeline converts sample timestamps into loc's wall clock, keeping order.
// A nil loc means the local zone.
func Timeline(samples []models.TimelineSample, loc *time.Location) []TimelinePoint {
	if len(samples) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]TimelinePoint, 0, len(samples))
	for _, s := range samples {
		display := ""
		if !s.Timestamp.IsZero() {
			display = s.Timestamp.In(loc).Format("15:04:05")
		}
		out = append(out, TimelinePoint{DisplayTime: display, PacketCount: s.PacketCount})
	}
	return out
}

func Streams(streams []models.TCPStream, n int) []StreamRow {
	if len(streams) == 0 || n <= 0 {
		return nil
	}
	var out []StreamRow
	for _, s := range streams {
		if len(out) == n {
			break
		}
		if !s.Valid() {
			continue
		}
		ports := make([]string, len(s.Ports))
		for i, p := range s.Ports {
			ports[i] = strconv.Itoa(p)
		}
		out = append(out, StreamRow{
			Endpoints: strings.Join(s.Endpoints, models.PairSeparator),
			Packets:   s.Packets,
			Size:      FormatKB(s.Bytes),
			Ports:     strings.Join(ports, ", "),
		})
	}
	return out
}

func Anomalies(list []models.Anomaly) []AnomalyRow {
	if len(list) == 0 {
		return nil
	}
	out := make([]AnomalyRow, 0, len(list))
	for _, a := range list {
		out = append(out, AnomalyRow{
			Type:        a.Type,
			Description: a.Description,
			Severity:    a.Severity,
			SourceIP:    a.SourceIP,
		})
	}
	return out
}

func Stats(s *models.BasicStats) *StatsCard {
	if s == nil {
		return nil
	}
	return &StatsCard{
		TotalPackets: FormatCount(s.TotalPackets),
		TotalBytes:   FormatMB(s.TotalBytes),
		Duration:     formatNumber(s.DurationSeconds) + "s",
		Rate:         formatNumber(s.Rate()),
	}
}

// KPIs prefers the kpis record and falls back to the raw tcp_analysis one
func KPIs(a *models.AnalysisResult) *KPICard {
	if a == nil {
		return nil
	}
	if a.KPIs != nil {
		return &KPICard{
			Established: a.KPIs.Established,
			Failed:      a.KPIs.Failed,
			SuccessRate: a.KPIs.SuccessRate,
		}
	}
	if a.TCPAnalysis != nil {
		return &KPICard{
			Established: a.TCPAnalysis.SuccessfulConnections,
			Failed:      a.TCPAnalysis.FailedConnections,
			SuccessRate: a.TCPAnalysis.SuccessRate,
		}
	}
	return nil
}

// DNS reads the opaque dns_analysis record on a best-effort basis
func DNS(raw json.RawMessage) *DNSSummary {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var payload struct {
		TotalQueries   int64 `json:"total_queries"`
		TotalResponses int64 `json:"total_responses"`
		UniqueDomains  int64 `json:"unique_domains"`
		TopDomains     []struct {
			Domain string `json:"domain"`
			Count  int64  `json:"count"`
		} `json:"top_domains"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	summary := &DNSSummary{
		TotalQueries:   payload.TotalQueries,
		TotalResponses: payload.TotalResponses,
		UniqueDomains:  payload.UniqueDomains,
	}
	for _, d := range payload.TopDomains {
		summary.TopDomains = append(summary.TopDomains, DomainCount{Domain: d.Domain, Count: d.Count})
	}
	return summary
}
