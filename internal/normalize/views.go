package normalize

import (
	"time"

	"github.com/netty/analyst/internal/models"
)

// EmptyFilterHint follows the service's notice when a filter matches nothing
const EmptyFilterHint = "Try selecting a different protocol or check if your capture file contains the selected protocol traffic."

// Dashboard is every section of the dashboard screen. A nil or empty field
// is a section that is not rendered.
type Dashboard struct {
	Stats         *StatsCard
	KPIs          *KPICard
	Protocols     []ChartEntry
	Conversations []ConversationRow
	Timeline      []TimelinePoint
	Anomalies     []AnomalyRow
	Streams       []StreamRow
	DNS           *DNSSummary
}

func BuildDashboard(a *models.AnalysisResult, loc *time.Location) Dashboard {
	if a == nil {
		return Dashboard{}
	}
	return Dashboard{
		Stats:         Stats(a.BasicStats),
		KPIs:          KPIs(a),
		Protocols:     ProtocolSeries(a.ProtocolDistribution),
		Conversations: Conversations(a.IPConversations, DashboardConversations),
		Timeline:      Timeline(a.Timeline, loc),
		Anomalies:     Anomalies(a.Anomalies),
		Streams:       Streams(a.TCPStreams, DashboardStreams),
		DNS:           DNS(a.DNSAnalysis),
	}
}

type FilterStats struct {
	TotalBytes string
	Duration   string
}

// FilterView is the result pane of the protocol filter screen
type FilterView struct {
	Protocol      string
	PacketCount   string
	Stats         *FilterStats
	Conversations []ConversationRow
	// Notice is set when the filter matched no traffic
	Notice string
}

func BuildFilterView(r *models.FilterResult) *FilterView {
	if r == nil {
		return nil
	}
	view := &FilterView{
		Protocol:    r.Protocol,
		PacketCount: FormatCount(r.PacketCount),
	}
	if r.BasicStats != nil {
		view.Stats = &FilterStats{
			TotalBytes: FormatMB(r.BasicStats.TotalBytes),
			Duration:   formatNumber(r.BasicStats.DurationSeconds) + "s",
		}
	}
	if r.Empty() {
		view.Notice = r.Error
		return view
	}
	view.Conversations = Conversations(r.IPConversations, FilterConversations)
	return view
}
