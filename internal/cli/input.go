// Package cli handles cmd line input for interactive filtering, mainly for DBG and testing
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bastiangx/pickserve/pkg/dictionary"
	"github.com/bastiangx/pickserve/pkg/filter"
	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

type styles struct {
	header    lipgloss.Style
	index     lipgloss.Style
	match     lipgloss.Style
	marker    lipgloss.Style
	separator lipgloss.Style
	errorText lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().Bold(true),
		index:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#797593", Dark: "#908caa"}),
		match: r.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"}),
		marker: r.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#ea9d34", Dark: "#f6c177"}),
		separator: r.NewStyle().Faint(true),
		errorText: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#b4637a", Dark: "#eb6f92"}),
	}
}

// InputHandler reads queries from stdin, runs them through a Searcher and
// prints the matches. Lines starting with ':' are commands.
type InputHandler struct {
	searcher *filter.Searcher[dictionary.Entry]
	limit    int
	in       io.Reader
	out      io.Writer
	styles   styles

	// shown holds the items of the last listing, numbered from 1
	shown []dictionary.Entry
}

// NewInputHandler creates a handler on stdin and stdout.
func NewInputHandler(searcher *filter.Searcher[dictionary.Entry], limit int) *InputHandler {
	return NewInputHandlerWithIO(searcher, limit, os.Stdin, os.Stdout)
}

// NewInputHandlerWithIO creates a handler on the given streams.
func NewInputHandlerWithIO(searcher *filter.Searcher[dictionary.Entry], limit int, in io.Reader, out io.Writer) *InputHandler {
	if limit < 1 {
		limit = 24
	}
	return &InputHandler{
		searcher: searcher,
		limit:    limit,
		in:       in,
		out:      out,
		styles:   newStyles(lipgloss.NewRenderer(out)),
	}
}

// Start begins the interface loop. It returns nil when input ends or on :q.
func (h *InputHandler) Start() error {
	fmt.Fprintln(h.out, h.styles.header.Render("PickServe CLI [BETA]"))
	fmt.Fprintln(h.out, "type a pattern and press Enter to filter, :help for commands (Ctrl+C to exit)")

	scanner := bufio.NewScanner(h.in)
	for {
		fmt.Fprint(h.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(h.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if quit := h.handleCommand(line); quit {
				return nil
			}
			continue
		}
		h.handleQuery(line)
	}
}

func (h *InputHandler) handleCommand(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":q", ":quit":
		return true
	case ":pick", ":forget":
		item, ok := h.pickArg(fields)
		if !ok {
			return false
		}
		session := h.searcher.Session()
		if fields[0] == ":pick" {
			session.Accessed(item)
			fmt.Fprintf(h.out, "picked %s\n", item.Word)
		} else if session.Forget(item) {
			fmt.Fprintf(h.out, "forgot %s\n", item.Word)
		} else {
			fmt.Fprintf(h.out, "%s is not in history\n", item.Word)
		}
	case ":history":
		items := h.searcher.Session().History().Items()
		if len(items) == 0 {
			fmt.Fprintln(h.out, "history is empty")
			return false
		}
		// most recent first
		for i := len(items) - 1; i >= 0; i-- {
			fmt.Fprintf(h.out, "%s %s\n", h.styles.index.Render(fmt.Sprintf("%2d.", len(items)-i)), items[i].Word)
		}
	case ":help":
		fmt.Fprintln(h.out, ":pick N     record item N of the last listing as selected")
		fmt.Fprintln(h.out, ":forget N   remove item N from the history")
		fmt.Fprintln(h.out, ":history    list the history, most recent first")
		fmt.Fprintln(h.out, ":q          quit")
	default:
		h.printError(fmt.Sprintf("unknown command %s", fields[0]))
	}
	return false
}

func (h *InputHandler) pickArg(fields []string) (dictionary.Entry, bool) {
	if len(fields) != 2 {
		h.printError(fmt.Sprintf("usage: %s N", fields[0]))
		return dictionary.Entry{}, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(h.shown) {
		h.printError(fmt.Sprintf("no item %s in the last listing", fields[1]))
		return dictionary.Entry{}, false
	}
	return h.shown[n-1], true
}

// handleQuery runs one search and waits for its final update.
func (h *InputHandler) handleQuery(raw string) {
	seq := h.searcher.Search(raw)
	if seq == 0 {
		h.printError("searcher is closed")
		return
	}
	for u := range h.searcher.Updates() {
		if u.Seq != seq {
			continue
		}
		if !u.Final {
			log.Debugf("stage %d: %d matches in %v", u.Stage, u.Results.Len(), u.Elapsed)
			continue
		}
		switch {
		case u.Cancelled:
			log.Debugf("search for %q cancelled", raw)
		case u.Err != nil:
			h.printError(u.Err.Error())
		default:
			h.render(u)
		}
		return
	}
}

func (h *InputHandler) render(u filter.Update[dictionary.Entry]) {
	h.shown = nil
	if u.Results.Len() == 0 {
		fmt.Fprintf(h.out, "No matches for '%s'\n", u.Query.Raw())
		return
	}
	fmt.Fprintln(h.out, h.styles.header.Render(
		fmt.Sprintf("%d matches for '%s' (%s, %v)", u.Results.Len(), u.Query.Raw(), u.Query.Rule(), u.Elapsed)))

	for _, e := range u.Entries {
		if len(h.shown) == h.limit {
			break
		}
		if e.Separator {
			fmt.Fprintln(h.out, h.styles.separator.Render(strings.Repeat("─", 32)))
			continue
		}
		h.shown = append(h.shown, e.Item)

		var b strings.Builder
		b.WriteString(h.styles.index.Render(fmt.Sprintf("%2d.", len(h.shown))))
		b.WriteString(" ")
		b.WriteString(h.highlight(u.Query, e.Item.Word))
		b.WriteString(h.styles.index.Render(fmt.Sprintf("  (rank: %d)", e.Item.Rank)))
		if e.History {
			b.WriteString(" " + h.styles.marker.Render("[h]"))
		}
		if e.Duplicate {
			b.WriteString(" " + h.styles.marker.Render("[dup]"))
		}
		fmt.Fprintln(h.out, b.String())
	}
}

// highlight renders the matched ranges of word in the match style.
func (h *InputHandler) highlight(q *pattern.Query, word string) string {
	spans := q.Highlight(word)
	if len(spans) == 0 {
		return word
	}
	runes := []rune(word)
	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		b.WriteString(string(runes[cursor:s.Start]))
		b.WriteString(h.styles.match.Render(string(runes[s.Start:s.End])))
		cursor = s.End
	}
	b.WriteString(string(runes[cursor:]))
	return b.String()
}

func (h *InputHandler) printError(msg string) {
	fmt.Fprintln(h.out, h.styles.errorText.Render(msg))
}
