package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mynameiscfed/termtables"
	"github.com/netty/analyst/internal/models"
	"github.com/netty/analyst/internal/normalize"
	"github.com/netty/analyst/internal/session"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("124")).Padding(0, 1)
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	barFillChar  = "█"
	sparkLevels  = []rune("▁▂▃▄▅▆▇█")
	severityTint = map[models.Severity]lipgloss.Color{
		models.SeverityHigh:   lipgloss.Color("196"),
		models.SeverityMedium: lipgloss.Color("214"),
		models.SeverityLow:    lipgloss.Color("226"),
	}
)

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n")
	s.WriteString(m.renderBanner())
	s.WriteString("\n")

	switch m.session.Screen() {
	case session.ScreenUpload:
		s.WriteString(m.renderUpload())
	case session.ScreenDashboard:
		s.WriteString(m.window(m.dashboardLines(), m.viewportHeight()))
	case session.ScreenChat:
		s.WriteString(m.renderChat())
	case session.ScreenFilter:
		s.WriteString(m.renderFilter())
	}

	s.WriteString("\n")
	s.WriteString(m.renderFooter())
	return s.String()
}

func (m *Model) renderHeader() string {
	title := " Netty Analyst "

	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	if m.serviceUp {
		statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	} else if strings.HasPrefix(m.serviceStatus, "Checking") {
		statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	}

	header := titleStyle.Padding(0, 1).Render(title)
	status := m.serviceStatus
	if m.serviceURL != "" {
		status += " (" + m.serviceURL + ")"
	}
	status = truncateString(status, max(m.width/2, 8))
	statusText := statusStyle.Padding(0, 1).Render(status)

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		header,
		lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(header)-lipgloss.Width(statusText), 0)).Render(""),
		statusText,
	)

	return lipgloss.NewStyle().
		Width(m.width).
		Background(lipgloss.Color("235")).
		Render(headerLine)
}

func (m *Model) renderTabs() string {
	var tabs []string
	for _, screen := range session.Screens {
		label := " " + screen.String() + " "
		switch {
		case screen == m.session.Screen():
			tabs = append(tabs, lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("238")).Foreground(lipgloss.Color("255")).Render(label))
		case screen != session.ScreenUpload && !m.session.HasAnalysis():
			tabs = append(tabs, dimStyle.Render(label))
		default:
			tabs = append(tabs, labelStyle.Render(label))
		}
	}
	line := strings.Join(tabs, " ")
	if name := m.session.FileName(); name != "" {
		file := accentStyle.Render(truncateString(name, 40))
		gap := max(m.width-lipgloss.Width(line)-lipgloss.Width(file)-1, 1)
		line += strings.Repeat(" ", gap) + file
	}
	return line
}

// renderBanner shows the global error, otherwise the latest notice
func (m *Model) renderBanner() string {
	if err := m.session.Err(); err != "" {
		return errorStyle.Width(m.width).Render(truncateString(err, max(m.width-2, 8)))
	}
	if m.notice != "" {
		return noticeStyle.Padding(0, 1).Render(m.notice)
	}
	return ""
}

func (m *Model) renderFooter() string {
	var help string
	switch m.session.Screen() {
	case session.ScreenUpload:
		help = " enter:analyze | ctrl+r:resume current | tab:next screen | esc:dismiss | ctrl+c:quit "
	case session.ScreenDashboard:
		help = " q:quit | ?:help | j/k:scroll | tab:next screen | ctrl+p:pdf | ctrl+e:csv "
	case session.ScreenChat:
		help = " enter:send | pgup/pgdown:scroll | tab:next screen | ctrl+c:quit "
	case session.ScreenFilter:
		help = " q:quit | j/k:protocol | enter:apply | tab:next screen | ctrl+p:pdf | ctrl+e:csv "
	}

	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Width(m.width).
		Align(lipgloss.Center).
		Background(lipgloss.Color("235")).
		Render(help)
}

func (m *Model) renderUpload() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Upload Network Capture"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Supported formats: .pcap, .pcapng, .cap"))
	b.WriteString("\n\n")

	if m.session.Loading() {
		b.WriteString(m.spinner.View() + " Analyzing capture, large files can take a few minutes...")
	} else {
		b.WriteString(m.pathInput.View())
	}

	b.WriteString("\n\n")
	if m.session.HasAnalysis() {
		b.WriteString(dimStyle.Render("Current analysis: " + m.session.FileName() + ". Press tab to return to it."))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("86")).
		Padding(1, 2).
		Width(min(max(m.width-8, 20), 90)).
		Render(b.String())

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.viewportHeight()).
		Align(lipgloss.Center, lipgloss.Center).
		Render(box)
}

func (m *Model) dashboardLines() []string {
	d := normalize.BuildDashboard(m.session.Analysis(), m.loc)
	var lines []string
	section := func(title string) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, titleStyle.Render(title))
	}

	if d.Stats != nil {
		section("Overview")
		lines = append(lines, fmt.Sprintf(" %s %s   %s %s   %s %s   %s %s",
			labelStyle.Render("Packets:"), valueStyle.Render(d.Stats.TotalPackets),
			labelStyle.Render("Data:"), valueStyle.Render(d.Stats.TotalBytes),
			labelStyle.Render("Duration:"), valueStyle.Render(d.Stats.Duration),
			labelStyle.Render("Rate:"), valueStyle.Render(d.Stats.Rate+" pkt/s"),
		))
	}

	if d.KPIs != nil {
		section("TCP Connections")
		lines = append(lines, fmt.Sprintf(" %s %d   %s %d   %s %.2f%%",
			labelStyle.Render("Established:"), d.KPIs.Established,
			labelStyle.Render("Failed:"), d.KPIs.Failed,
			labelStyle.Render("Success rate:"), d.KPIs.SuccessRate,
		))
	}

	if len(d.Protocols) > 0 {
		section("Protocol Distribution")
		barWidth := max(m.width-40, 10)
		for _, p := range d.Protocols {
			bar := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).
				Render(strings.Repeat(barFillChar, scaled(p.Percentage/100, barWidth)))
			lines = append(lines, fmt.Sprintf(" %-8s %s %s",
				truncateString(p.Label, 8), bar,
				labelStyle.Render(fmt.Sprintf("%s (%.1f%%)", normalize.FormatCount(p.Value), p.Percentage))))
		}
	}

	if len(d.Timeline) > 0 {
		section("Traffic Timeline")
		lines = append(lines, " "+accentStyle.Render(sparkline(d.Timeline, max(m.width-4, 10))))
		first, last := d.Timeline[0].DisplayTime, d.Timeline[len(d.Timeline)-1].DisplayTime
		lines = append(lines, " "+dimStyle.Render(first+" → "+last))
	}

	if len(d.Conversations) > 0 {
		section("Top Conversations")
		barWidth := max(m.width-72, 8)
		for _, c := range d.Conversations {
			lines = append(lines, fmt.Sprintf(" %-44s %10s pkts %12s %s",
				truncateString(c.Label, 44), normalize.FormatCount(c.Packets), c.Size,
				accentStyle.Render(strings.Repeat(barFillChar, scaled(c.Share, barWidth)))))
		}
	}

	if len(d.Anomalies) > 0 {
		section("Anomalies")
		for _, a := range d.Anomalies {
			tint, ok := severityTint[a.Severity]
			if !ok {
				tint = lipgloss.Color("245")
			}
			line := fmt.Sprintf(" [%s] %s: %s", a.Severity, a.Type, a.Description)
			if a.SourceIP != "" {
				line += " (" + a.SourceIP + ")"
			}
			lines = append(lines, lipgloss.NewStyle().Foreground(tint).Render(truncateString(line, max(m.width-1, 10))))
		}
	}

	if len(d.Streams) > 0 {
		section("TCP Streams")
		table := termtables.CreateTable()
		table.AddHeaders("Endpoints", "Packets", "Data", "Ports")
		for _, s := range d.Streams {
			table.AddRow(s.Endpoints, s.Packets, s.Size, s.Ports)
		}
		lines = append(lines, strings.Split(strings.TrimRight(table.Render(), "\n"), "\n")...)
	}

	if d.DNS != nil {
		section("DNS")
		lines = append(lines, fmt.Sprintf(" %s %d   %s %d   %s %d",
			labelStyle.Render("Queries:"), d.DNS.TotalQueries,
			labelStyle.Render("Responses:"), d.DNS.TotalResponses,
			labelStyle.Render("Unique domains:"), d.DNS.UniqueDomains,
		))
		for _, domain := range d.DNS.TopDomains {
			lines = append(lines, fmt.Sprintf("   %-50s %d", truncateString(domain.Domain, 50), domain.Count))
		}
	}

	if len(lines) == 0 {
		lines = append(lines, labelStyle.Render("The service returned no statistics for this capture."))
	}
	return lines
}

func (m *Model) renderChat() string {
	height := m.chatHeight()
	lines := m.chatLines()

	// chatScroll counts lines up from the bottom
	end := len(lines) - min(m.chatScroll, max(len(lines)-height, 0))
	start := max(end-height, 0)
	visible := lines[start:end]
	for len(visible) < height {
		visible = append(visible, "")
	}

	return strings.Join(visible, "\n") + "\n\n" + m.chatInput.View()
}

func (m *Model) filterLines() []string {
	var lines []string
	protocol := m.session.FilterProtocol()

	switch {
	case m.session.Filtering():
		lines = append(lines, m.spinner.View()+fmt.Sprintf(" Filtering %s traffic...", protocol))
		return lines
	case m.session.FilterErr() != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.session.FilterErr()))
		return lines
	}

	view := normalize.BuildFilterView(m.session.FilterResult())
	if view == nil {
		lines = append(lines, labelStyle.Render("Select a protocol and press enter to filter the capture."))
		return lines
	}

	lines = append(lines, titleStyle.Render(view.Protocol+" Traffic"))
	summary := fmt.Sprintf(" %s %s", labelStyle.Render("Packets:"), valueStyle.Render(view.PacketCount))
	if view.Stats != nil {
		summary += fmt.Sprintf("   %s %s   %s %s",
			labelStyle.Render("Data:"), valueStyle.Render(view.Stats.TotalBytes),
			labelStyle.Render("Duration:"), valueStyle.Render(view.Stats.Duration))
	}
	lines = append(lines, summary, "")

	if view.Notice != "" {
		lines = append(lines, noticeStyle.Render(view.Notice))
		lines = append(lines, dimStyle.Render(normalize.EmptyFilterHint))
		return lines
	}
	if len(view.Conversations) == 0 {
		lines = append(lines, labelStyle.Render("No conversations recorded for this protocol."))
		return lines
	}

	barWidth := 20
	table := termtables.CreateTable()
	table.AddTitle("Top " + view.Protocol + " Conversations")
	table.AddHeaders("Conversation", "Packets", "Data", "Share")
	for _, c := range view.Conversations {
		table.AddRow(c.Label, normalize.FormatCount(c.Packets), c.Size, strings.Repeat("#", scaled(c.Share, barWidth)))
	}
	lines = append(lines, strings.Split(strings.TrimRight(table.Render(), "\n"), "\n")...)
	return lines
}

func (m *Model) renderFilter() string {
	var menu []string
	menu = append(menu, titleStyle.Render("Protocols"))
	for i, p := range models.Protocols {
		line := fmt.Sprintf(" %-5s %s", p.Name, dimStyle.Render(p.Description))
		if i == m.protocolIdx {
			line = lipgloss.NewStyle().Background(lipgloss.Color("238")).Foreground(lipgloss.Color("255")).Render(fmt.Sprintf(">%-5s %s", p.Name, p.Description))
		}
		menu = append(menu, line)
	}

	left := lipgloss.NewStyle().Width(42).Render(strings.Join(menu, "\n"))
	right := m.window(m.filterLines(), m.viewportHeight())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// window returns the viewport-sized slice of lines at the current scroll offset
func (m *Model) window(lines []string, height int) string {
	offset := min(m.scrollOffset, max(len(lines)-height, 0))
	end := min(offset+height, len(lines))
	visible := append([]string(nil), lines[offset:end]...)
	for len(visible) < height {
		visible = append(visible, "")
	}
	return strings.Join(visible, "\n")
}

func (m *Model) chatHeight() int {
	return m.viewportHeight() - 2
}

func (m *Model) chatLines() []string {
	wrap := lipgloss.NewStyle().Width(max(m.width-4, 10))

	var lines []string
	for _, turn := range m.chat.Turns() {
		label := botStyle.Render("Assistant")
		if turn.FromUser() {
			label = userStyle.Render("You")
		}
		lines = append(lines, label+dimStyle.Render(" "+turn.CreatedAt.Format("15:04")))
		for _, line := range turn.Lines() {
			lines = append(lines, strings.Split(wrap.Render("  "+line), "\n")...)
		}
		lines = append(lines, "")
	}
	if m.chat.Pending() {
		lines = append(lines, m.spinner.View()+labelStyle.Render(" Assistant is thinking..."))
	}
	return lines
}

// maxChatScroll is how far the transcript can be scrolled back
func (m *Model) maxChatScroll() int {
	return max(len(m.chatLines())-m.chatHeight(), 0)
}

// maxScroll is the largest useful scroll offset for the current screen
func (m *Model) maxScroll() int {
	var n int
	switch m.session.Screen() {
	case session.ScreenDashboard:
		n = len(m.dashboardLines())
	case session.ScreenFilter:
		n = len(m.filterLines())
	}
	return max(n-m.viewportHeight(), 0)
}

func (m *Model) renderHelp() string {
	helpText := `
 Netty Analyst - Help

 Screens:
   tab / shift+tab   Next / previous screen
   Dashboard, Chat and Filter open once a capture is analyzed

 Upload:
   enter             Analyze the file at the entered path
   ctrl+r            Load the analysis the service already holds

 Dashboard and Filter:
   j/↓ k/↑           Scroll (select a protocol on Filter)
   ctrl+d / ctrl+u   Page down / up
   enter             Apply the selected protocol filter

 Reports:
   ctrl+p            Export PDF report
   ctrl+e            Export CSV report

   esc               Dismiss error
   q / ctrl+c        Quit

 Press any key to return...`

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(helpText)
}

// scaled maps a fraction in [0, 1] onto a bar of at most width cells
func scaled(fraction float64, width int) int {
	if fraction <= 0 || width <= 0 {
		return 0
	}
	n := int(fraction*float64(width) + 0.5)
	if n < 1 {
		n = 1
	}
	return min(n, width)
}

// sparkline draws packet counts as block characters, bucketing to width
func sparkline(points []normalize.TimelinePoint, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	buckets := make([]int64, min(len(points), width))
	for i, p := range points {
		b := i * len(buckets) / len(points)
		if p.PacketCount > buckets[b] {
			buckets[b] = p.PacketCount
		}
	}
	var peak int64
	for _, v := range buckets {
		peak = max(peak, v)
	}

	var s strings.Builder
	for _, v := range buckets {
		level := 0
		if peak > 0 {
			level = int(v * int64(len(sparkLevels)-1) / peak)
		}
		s.WriteRune(sparkLevels[level])
	}
	return s.String()
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
