// Package report renders the text the bot publishes: the change log of executed commands,
// the rules comment and the Markdown tables of the daily thread.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dailytrade/internal/game"
)

// MaxCommentLength keeps a change log comment below Reddit's 10000 character limit once the
// header and footer are added.
const MaxCommentLength = 9600

const (
	logFooter = "^(These actions were performed automatically by a bot. If you think I made a mistake, " +
		"respond to this comment.)"
	noCommands = "I did not receive any commands, so I did not perform actions since last post."
)

// FormatMessages groups messages per user in the order users first appear.
func FormatMessages(messages []game.Message) string {
	var order []string
	grouped := make(map[string][]string)
	for _, m := range messages {
		if _, seen := grouped[m.Username]; !seen {
			order = append(order, m.Username)
		}
		grouped[m.Username] = append(grouped[m.Username], m.Text)
	}

	blocks := make([]string, 0, len(order))
	for _, u := range order {
		blocks = append(blocks, "u/"+u+"\n\n"+strings.Join(grouped[u], "\n\n"))
	}
	return strings.Join(blocks, "\n\n---\n")
}

// ChangeLog turns the formatted messages into the comments that carry them. An empty log
// still yields one comment, a long one is split into numbered parts.
func ChangeLog(text string) []string {
	switch {
	case text == "":
		return []string{wrapLog("*These are the actions I performed since last post.*", noCommands)}
	case len(text) > MaxCommentLength:
		return SplitChangeLog(text, MaxCommentLength)
	default:
		return []string{wrapLog("*These are the actions I performed since last post.*", text)}
	}
}

// SplitChangeLog cuts text at the last newline before max and numbers the parts from 1.
// A chunk without any newline is cut hard at the last rune boundary before max.
func SplitChangeLog(text string, max int) []string {
	var chunks []string
	for len(text) > max {
		cut := strings.LastIndex(text[:max], "\n")
		if cut < 0 {
			cut = max
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
			chunks = append(chunks, text[:cut])
			text = text[cut:]
			continue
		}
		chunks = append(chunks, text[:cut])
		text = text[cut+1:]
	}
	chunks = append(chunks, text)

	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		header := fmt.Sprintf("*These are the actions I performed since last post (part %d).*", i+1)
		parts[i] = wrapLog(header, chunk)
	}
	return parts
}

func wrapLog(header, body string) string {
	return header + "\n\n---\n" + body + "\n\n---\n" + logFooter
}
