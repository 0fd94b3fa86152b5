package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/lipgloss"
)

const inputMaxHeight = 6

func newInputModel() textarea.Model {
	input := textarea.New()
	input.Placeholder = "Message, or /help"
	input.Prompt = "› "
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(1)
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j", "alt+enter"))
	applyInputStyles(&input, textColor, dimColor)
	input.Focus()
	return input
}

func applyInputStyles(input *textarea.Model, text, blur lipgloss.Color) {
	input.FocusedStyle.Base = lipgloss.NewStyle().Foreground(text).Background(inputBg)
	input.FocusedStyle.Text = lipgloss.NewStyle().Foreground(text).Background(inputBg)
	input.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
	input.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(dimColor).Background(inputBg)
	input.BlurredStyle.Base = lipgloss.NewStyle().Foreground(blur).Background(inputBg)
	input.BlurredStyle.Text = lipgloss.NewStyle().Foreground(blur).Background(inputBg)
	input.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.BlurredStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
}

func normalizeNewlines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(value, "\r", "\n")
}

// inputHeight grows the composer with its content up to inputMaxHeight.
func inputHeight(value string) int {
	n := strings.Count(value, "\n") + 1
	if n > inputMaxHeight {
		return inputMaxHeight
	}
	return n
}
