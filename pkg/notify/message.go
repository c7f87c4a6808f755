package notify

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
}

var statusLabel = map[string]string{
	"completed": "Research Complete",
	"failed":    "Research Failed",
}

func sessionURL(sessionID, dashboardURL string) string {
	if dashboardURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// TerminalInput describes a session that just reached a terminal status.
type TerminalInput struct {
	SessionID    string
	Query        string
	Status       string // completed, failed
	FinalReport  string
	ErrorMessage string
}

// BuildTerminalMessage creates Block Kit blocks announcing a session's
// terminal status.
func BuildTerminalMessage(input TerminalInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[input.Status]
	if label == "" {
		label = "Research " + input.Status
	}

	headerText := fmt.Sprintf("%s *%s*\n%s", emoji, label, input.Query)
	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	switch input.Status {
	case "completed":
		if input.FinalReport != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.FinalReport), false, false),
				nil, nil,
			))
		}
	case "failed":
		if input.ErrorMessage != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Error:*\n%s", truncateForSlack(input.ErrorMessage)), false, false),
				nil, nil,
			))
		}
	}

	if url := sessionURL(input.SessionID, dashboardURL); url != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Report", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view full report in dashboard)_"
}
