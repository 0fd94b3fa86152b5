package chat

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/adamavenir/aioffice/internal/types"
	"github.com/charmbracelet/lipgloss"
)

var (
	textColor    = lipgloss.Color("252")
	dimColor     = lipgloss.Color("243")
	userColor    = lipgloss.Color("159")
	statusColor  = lipgloss.Color("244")
	accentColor  = lipgloss.Color("111")
	unreadColor  = lipgloss.Color("214")
	errorColor   = lipgloss.Color("203")
	successColor = lipgloss.Color("42")
	caretColor   = lipgloss.Color("111")
	inputBg      = lipgloss.Color("236")
	sidebarBg    = lipgloss.Color("235")
	selectedBg   = lipgloss.Color("238")
)

var agentPalette = []lipgloss.Color{
	lipgloss.Color("111"),
	lipgloss.Color("157"),
	lipgloss.Color("216"),
	lipgloss.Color("36"),
	lipgloss.Color("183"),
	lipgloss.Color("230"),
}

// buildColorMap assigns palette colors to agents in roster order. Agents
// that carry their own color keep it.
func buildColorMap(agents []types.Agent) map[string]lipgloss.Color {
	colors := make(map[string]lipgloss.Color, len(agents))
	for idx, a := range agents {
		if c := strings.TrimSpace(a.Color); c != "" {
			colors[a.ID] = lipgloss.Color(c)
			continue
		}
		colors[a.ID] = agentPalette[idx%len(agentPalette)]
	}
	return colors
}

func colorForSender(sender string, colorMap map[string]lipgloss.Color) lipgloss.Color {
	if sender == "" || sender == "user" {
		return userColor
	}
	if color, ok := colorMap[sender]; ok {
		return color
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return agentPalette[int(h.Sum32()%uint32(len(agentPalette)))]
}

func contrastTextColor(color lipgloss.Color) lipgloss.Color {
	code, ok := parseColorCode(color)
	if !ok {
		return lipgloss.Color("231")
	}
	r, g, b := colorCodeToRGB(code)
	luminance := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if luminance > 128 {
		return lipgloss.Color("16")
	}
	return lipgloss.Color("231")
}

func parseColorCode(color lipgloss.Color) (int, bool) {
	trimmed := strings.TrimSpace(string(color))
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 || parsed > 255 {
		return 0, false
	}
	return parsed, true
}

func colorCodeToRGB(code int) (int, int, int) {
	if code < 16 {
		standard := [16][3]int{
			{0, 0, 0}, {128, 0, 0}, {0, 128, 0}, {128, 128, 0},
			{0, 0, 128}, {128, 0, 128}, {0, 128, 128}, {192, 192, 192},
			{128, 128, 128}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
			{0, 0, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
		}
		values := standard[code]
		return values[0], values[1], values[2]
	}

	if code <= 231 {
		index := code - 16
		toRGB := func(value int) int {
			if value == 0 {
				return 0
			}
			return 55 + value*40
		}
		return toRGB(index / 36), toRGB((index % 36) / 6), toRGB(index % 6)
	}

	gray := 8 + (code-232)*10
	return gray, gray, gray
}
