package command

import (
	"regexp"
	"strings"
)

type Kind string

const (
	Buy          Kind = "buy"
	Sell         Kind = "sell"
	Loan         Kind = "loan"
	Pay          Kind = "pay"
	Exit         Kind = "exit"
	Unrecognized Kind = "unrecognized"
)

// AmountAll is the amount literal that resolves to the full relevant quantity.
const AmountAll = "all"

type Command struct {
	Kind      Kind   `json:"kind"`
	Amount    string `json:"amount,omitempty"`
	Subreddit string `json:"subreddit,omitempty"`
	Raw       string `json:"raw"`
}

// String renders the command back into bracket form.
func (c Command) String() string {
	return "[" + c.Raw + "]"
}

var commandRE = regexp.MustCompile(
	`\[\s*(sell|buy)\s+(\d+|all)(?:\s+r/(\w+))?\s*\]` +
		`|\[\s*(loan|pay)\s+(\d+|all)\s*\]` +
		`|\[\s*(exit)\s*\]` +
		`|\[(.*?)\]`,
)

// Parse extracts bracketed commands from comment text in the order they appear.
// Backslashes are dropped first so markdown-escaped brackets still count.
func Parse(text string) []Command {
	text = strings.ToLower(strings.ReplaceAll(text, `\`, ""))

	var out []Command
	for _, m := range commandRE.FindAllStringSubmatchIndex(text, -1) {
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}
		raw := text[m[0]+1 : m[1]-1]
		switch {
		case group(1) != "":
			out = append(out, Command{Kind: Kind(group(1)), Amount: group(2), Subreddit: group(3), Raw: raw})
		case group(4) != "":
			out = append(out, Command{Kind: Kind(group(4)), Amount: group(5), Raw: raw})
		case group(6) != "":
			out = append(out, Command{Kind: Exit, Raw: raw})
		default:
			out = append(out, Command{Kind: Unrecognized, Raw: group(7)})
		}
	}
	return out
}
