package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"optiquery/pkg/optiquery"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// printer writes outcomes as styled markdown or as JSON.
type printer struct {
	w          io.Writer
	format     string
	transcript bool
	md         *glamour.TermRenderer
}

func newPrinter(w io.Writer, format, style string, transcript bool) (*printer, error) {
	p := &printer{w: w, format: format, transcript: transcript}
	if format == "json" {
		return p, nil
	}
	if format != "text" {
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	p.md = md
	return p, nil
}

type jsonOutcome struct {
	Query      string                `json:"query"`
	Result     *optiquery.Result     `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	Turns      int                   `json:"turns"`
	Transcript *optiquery.Transcript `json:"transcript,omitempty"`
}

// print renders one finished conversation.
func (p *printer) print(query string, out optiquery.Outcome, runErr error) error {
	if p.format == "json" {
		return p.printJSON(query, out, runErr)
	}

	fmt.Fprintln(p.w, titleStyle.Render("Query"))
	fmt.Fprintln(p.w, dimStyle.Render(strings.TrimSpace(query)))
	fmt.Fprintln(p.w)

	if runErr != nil {
		fmt.Fprintln(p.w, errorStyle.Render("Failed: ")+runErr.Error())
	} else {
		rendered, err := p.md.Render(resultMarkdown(out.Result))
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Fprint(p.w, rendered)
	}
	fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf("%d turns, %d rejected, conversation %s",
		out.Transcript.Turns, out.Transcript.Rejections(), out.Transcript.ID)))

	if p.transcript && len(out.Transcript.Entries) > 0 {
		rendered, err := p.md.Render(transcriptMarkdown(out.Transcript))
		if err != nil {
			return fmt.Errorf("failed to render transcript: %w", err)
		}
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, titleStyle.Render("Transcript"))
		fmt.Fprint(p.w, rendered)
	}
	return nil
}

func (p *printer) printJSON(query string, out optiquery.Outcome, runErr error) error {
	o := jsonOutcome{Query: query, Turns: out.Transcript.Turns}
	if runErr != nil {
		o.Error = runErr.Error()
	} else {
		res := out.Result
		o.Result = &res
	}
	if p.transcript {
		tr := out.Transcript
		o.Transcript = &tr
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(o)
}

func resultMarkdown(res optiquery.Result) string {
	var sb strings.Builder
	sb.WriteString("# Optimized queries\n\n")
	if len(res.OptimizedQueriesAndExplanations) == 0 {
		sb.WriteString("_The agent proposed no rewrite._\n\n")
	}
	for i, q := range res.OptimizedQueriesAndExplanations {
		fmt.Fprintf(&sb, "## %d.\n\n```cypher\n%s\n```\n\n%s\n\n", i+1, strings.TrimSpace(q.Query), strings.TrimSpace(q.Explanation))
	}
	if len(res.Suggestions) > 0 {
		sb.WriteString("# Suggestions\n\n")
		for _, s := range res.Suggestions {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func transcriptMarkdown(tr optiquery.Transcript) string {
	var sb strings.Builder
	for i, e := range tr.Entries {
		label := string(e.Kind)
		if label == "" {
			label = "text"
		}
		fmt.Fprintf(&sb, "**%d. %s** `%s`\n\n", i+1, e.Role, label)
		if e.Rejection != "" {
			fmt.Fprintf(&sb, "> rejected: %s\n\n", e.Rejection)
		}
		fmt.Fprintf(&sb, "```json\n%s\n```\n\n", strings.TrimSpace(e.Text))
	}
	return sb.String()
}
