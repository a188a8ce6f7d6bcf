package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/agentstation/appgen/internal/cmd/table"
	"github.com/agentstation/appgen/internal/pipeline"
	"github.com/agentstation/appgen/internal/runs"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/events"
)

// Printer writes appgen records in one output format.
type Printer struct {
	w         io.Writer
	format    Format
	formatter Formatter
	now       func() time.Time
}

// NewPrinter returns a printer writing to w. An empty format is detected
// from w.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if f == "" {
		f = DetectFormat("", w)
	}
	return &Printer{w: w, format: f, formatter: NewFormatter(f), now: time.Now}, nil
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Projects prints a project listing.
func (p *Printer) Projects(projects []*store.Project) error {
	if p.format.IsTable() {
		if len(projects) == 0 {
			_, err := fmt.Fprintln(p.w, "No projects.")
			return err
		}
		return p.formatter.Format(p.w, table.ProjectsToTableData(projects, p.format == FormatWide))
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	return p.formatter.Format(p.w, projects)
}

// Project prints one project.
func (p *Printer) Project(project *store.Project) error {
	if p.format.IsTable() {
		return p.formatter.Format(p.w, table.ProjectToTableData(project))
	}
	return p.formatter.Format(p.w, project)
}

// Runs prints the active runs.
func (p *Printer) Runs(active []runs.Info) error {
	if p.format.IsTable() {
		if len(active) == 0 {
			_, err := fmt.Fprintln(p.w, "No active runs.")
			return err
		}
		return p.formatter.Format(p.w, table.RunsToTableData(active, p.now()))
	}
	if active == nil {
		active = []runs.Info{}
	}
	return p.formatter.Format(p.w, active)
}

// Nodes prints the pipeline nodes.
func (p *Printer) Nodes(nodes []pipeline.NodeInfo) error {
	if p.format.IsTable() {
		return p.formatter.Format(p.w, table.NodesToTableData(nodes))
	}
	return p.formatter.Format(p.w, nodes)
}

// Value prints a flat result such as a run acknowledgement.
func (p *Printer) Value(v map[string]any) error {
	return p.formatter.Format(p.w, v)
}

// Event prints one streamed event. Tables get a single readable line, JSON
// gets one compact object per line and YAML one document per event.
func (p *Printer) Event(env events.Envelope) error {
	switch p.format {
	case FormatJSON:
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	case FormatYAML:
		if _, err := fmt.Fprintln(p.w, "---"); err != nil {
			return err
		}
		return p.formatter.Format(p.w, env)
	default:
		_, err := fmt.Fprintln(p.w, table.EventLine(env))
		return err
	}
}
