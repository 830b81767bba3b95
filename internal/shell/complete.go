package shell

import (
	"sort"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"github.com/xtxerr/feedoracle/internal/feed"
)

var feedTypeNames = []string{"iv", "forward", "svi_params", "option_price", "spot", "domestic_rate"}

// Complete returns go-prompt suggestions for the text before the cursor.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)

	// Completing the first word.
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		return prompt.FilterHasPrefix(s.commandSuggestions(), word, true)
	}

	cmd := strings.ToLower(fields[0])
	pos := len(fields)
	if !strings.HasSuffix(before, " ") {
		pos--
	}

	switch cmd {
	case "add", "update", "put", "read", "remove":
		if pos == 1 {
			return prompt.FilterHasPrefix(s.feedSuggestions(), word, true)
		}
	case "get", "greeks", "check":
		switch pos {
		case 1:
			return prompt.FilterHasPrefix(s.principalSuggestions(), word, true)
		case 2:
			return prompt.FilterHasPrefix(s.feedSuggestions(), word, true)
		}
	case "grant", "revoke":
		switch pos {
		case 1:
			return prompt.FilterHasPrefix(s.principalSuggestions(), word, true)
		case 2:
			return prompt.FilterHasPrefix(typeSuggestions(), word, true)
		}
	case "grants":
		if pos == 1 {
			return prompt.FilterHasPrefix(s.principalSuggestions(), word, true)
		}
	case "list":
		if pos == 1 {
			return prompt.FilterHasPrefix(typeSuggestions(), word, true)
		}
	}
	return nil
}

func (s *Shell) commandSuggestions() []prompt.Suggest {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]prompt.Suggest, 0, len(names)+1)
	for _, name := range names {
		out = append(out, prompt.Suggest{Text: name, Description: commands[name].help})
	}
	return append(out, prompt.Suggest{Text: "quit", Description: "leave the shell"})
}

// feedSuggestions offers the feeds currently in storage.
func (s *Shell) feedSuggestions() []prompt.Suggest {
	entries := s.svc.Store().Snapshot()
	out := make([]prompt.Suggest, 0, len(entries))
	for _, e := range entries {
		out = append(out, prompt.Suggest{Text: e.Feed.String()})
	}
	return out
}

func (s *Shell) principalSuggestions() []prompt.Suggest {
	principals := s.svc.Permissions().Principals()
	out := make([]prompt.Suggest, 0, len(principals))
	for _, p := range principals {
		out = append(out, prompt.Suggest{Text: string(p)})
	}
	return out
}

func typeSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(feedTypeNames))
	for _, name := range feedTypeNames {
		t, _ := feed.ParseType(name)
		out = append(out, prompt.Suggest{Text: name, Description: "type " + strconv.Itoa(int(t))})
	}
	return out
}
