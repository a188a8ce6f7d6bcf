// Package table converts appgen records into rows for table output.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/appgen/internal/cmd/emoji"
	"github.com/agentstation/appgen/internal/pipeline"
	"github.com/agentstation/appgen/internal/runs"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/events"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// ProjectsToTableData converts projects to table format. Wide adds the
// timestamps and the last error.
func ProjectsToTableData(projects []*store.Project, wide bool) Data {
	headers := []string{"ID", "Name", "Status", "Progress", "Node"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignLeft}
	if wide {
		headers = append(headers, "Created", "Updated", "Error")
		align = append(align, AlignLeft, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		row := []string{
			p.ID,
			p.Name,
			FormatStatus(string(p.Status)),
			FormatPercent(p.CompletionPercentage),
			orDash(p.CurrentNode),
		}
		if wide {
			row = append(row, FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt), orDash(Truncate(p.Error, 60)))
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// ProjectToTableData renders one project as property/value rows.
func ProjectToTableData(p *store.Project) Data {
	rows := [][]string{
		{"ID", p.ID},
		{"Name", p.Name},
		{"Status", FormatStatus(string(p.Status))},
		{"Progress", FormatPercent(p.CompletionPercentage)},
		{"Current Node", orDash(p.CurrentNode)},
		{"Completed Nodes", orDash(strings.Join(p.CompletedNodes, ", "))},
		{"Created", FormatTime(p.CreatedAt)},
		{"Updated", FormatTime(p.UpdatedAt)},
	}
	if p.Error != "" {
		rows = append(rows, []string{"Error", p.Error})
	}
	for _, node := range p.CompletedNodes {
		if artifact, ok := p.Artifacts[node]; ok && artifact != "" {
			rows = append(rows, []string{"Artifact " + node, Truncate(firstLine(artifact), 60)})
		}
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

// RunsToTableData converts active runs to table format.
func RunsToTableData(active []runs.Info, now time.Time) Data {
	rows := make([][]string, 0, len(active))
	for _, r := range active {
		state := "running"
		if r.Cancelled {
			state = "cancelling"
		}
		rows = append(rows, []string{
			r.RunID,
			r.ProjectID,
			orDash(strings.Join(r.Nodes, ",")),
			FormatAge(now.Sub(r.StartedAt)),
			state,
		})
	}
	return Data{
		Headers:         []string{"Run", "Project", "Nodes", "Age", "State"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignLeft},
	}
}

// NodesToTableData converts pipeline nodes to table format.
func NodesToTableData(nodes []pipeline.NodeInfo) Data {
	rows := make([][]string, 0, len(nodes))
	for i, n := range nodes {
		kind := "record"
		if n.Command {
			kind = "command"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), n.Name, kind, orDash(n.Timeout), orDash(n.Description)})
	}
	return Data{
		Headers:         []string{"#", "Node", "Kind", "Timeout", "Description"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft, AlignRight, AlignLeft},
	}
}

// EventLine renders one pipeline event as a single line for streaming
// output.
func EventLine(env events.Envelope) string {
	data := env.Data
	switch env.Type {
	case events.KindStatusUpdate:
		parts := []string{string(env.Type)}
		if status, ok := data["status"].(string); ok && status != "" {
			parts = append(parts, FormatStatus(status))
		}
		for _, key := range []string{"completion_percentage", "progress"} {
			if pct, ok := toFloat(data[key]); ok {
				parts = append(parts, FormatPercent(pct))
				break
			}
		}
		if node, ok := data["current_node"].(string); ok && node != "" {
			parts = append(parts, node)
		}
		if msg, ok := data["message"].(string); ok && msg != "" {
			parts = append(parts, msg)
		}
		return strings.Join(parts, "  ")
	case events.KindError:
		msg, _ := data["error"].(string)
		if msg == "" {
			msg, _ = data["message"].(string)
		}
		line := emoji.Error + " error"
		if node, ok := data["node"].(string); ok && node != "" {
			line += "  " + node
		}
		return line + "  " + orDash(msg)
	case events.KindCompletion:
		status, _ := data["status"].(string)
		return emoji.ForStatus(status) + " completion  " + orDash(status)
	default:
		return string(env.Type)
	}
}

// FormatStatus prefixes a status with its symbol.
func FormatStatus(status string) string {
	if status == "" {
		return "-"
	}
	return emoji.ForStatus(status) + " " + status
}

// FormatPercent formats a completion percentage.
func FormatPercent(pct float64) string {
	if pct == float64(int(pct)) {
		return fmt.Sprintf("%d%%", int(pct))
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatTime formats a timestamp, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatAge formats a duration at second precision.
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
