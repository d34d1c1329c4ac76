package session

// Screen is one of the mutually exclusive top-level views
type Screen int

const (
	ScreenUpload Screen = iota
	ScreenDashboard
	ScreenChat
	ScreenFilter
)

// Screens lists every screen in tab order
var Screens = []Screen{ScreenUpload, ScreenDashboard, ScreenChat, ScreenFilter}

func (s Screen) String() string {
	switch s {
	case ScreenUpload:
		return "Upload"
	case ScreenDashboard:
		return "Dashboard"
	case ScreenChat:
		return "Chat"
	case ScreenFilter:
		return "Filter"
	default:
		return "Unknown"
	}
}

func (s Screen) valid() bool {
	return s >= ScreenUpload && s <= ScreenFilter
}

// needsAnalysis reports whether the screen can only be shown once a capture is loaded
func (s Screen) needsAnalysis() bool {
	return s != ScreenUpload
}
