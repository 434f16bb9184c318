// Package progress implements the progress & summary renderer (§4.I): a
// single-threaded consumer of merged per-container event streams, with
// selectable verbosity styles for in-flight events and final summaries.
//
// Grounded on the teacher's pkg/log console writer conventions (one line
// per event, container id always prefixed) generalized from structured
// log lines to a renderer over the agent protocol's Event stream.
package progress

import (
	"fmt"
	"io"
	"sort"

	"github.com/pacwrap/pacwrap/internal/agent"
	"github.com/pacwrap/pacwrap/internal/types"
)

// Style is the per-operator-selectable in-flight rendering style.
type Style int

const (
	Basic Style = iota
	Condensed
	CondensedForeign
	CondensedLocal
	Verbose
)

// SummaryStyle is the final-summary rendering style.
type SummaryStyle int

const (
	SummaryBasic SummaryStyle = iota
	SummaryBasicForeign
	SummaryTable
	SummaryTableForeign
)

// Renderer is the single-threaded consumer described in §4.I. It is not
// safe for concurrent use; callers multiplex every container's events
// into one channel before handing them to Consume.
type Renderer struct {
	Out              io.Writer
	Style            Style
	SummaryStyle     SummaryStyle
	ForeignTargets   map[string]bool // container id -> is-foreign-classified target
}

// Tagged pairs one agent.Event with the container id it came from, since
// events themselves carry no container identity. A caller that merges
// events from several agent.Handles into one channel for Consume wraps
// each in a Tagged; internal/txn drains its events itself and does not
// build them.
type Tagged struct {
	ContainerID string
	Event       agent.Event
}

// Consume drains events until ch closes, rendering each line-oriented
// and safe to interleave because every line is prefixed with its
// container id.
func (r *Renderer) Consume(ch <-chan Tagged) {
	for t := range ch {
		r.render(t)
	}
}

func (r *Renderer) render(t Tagged) {
	style := r.Style
	if r.ForeignTargets[t.ContainerID] {
		if style == CondensedForeign {
			style = Verbose
		}
	} else if style == CondensedLocal {
		style = Verbose
	}
	if style == CondensedForeign || style == CondensedLocal {
		style = Condensed
	}

	e := t.Event
	switch style {
	case Basic:
		r.writeBasic(t.ContainerID, e)
	case Condensed:
		r.writeCondensed(t.ContainerID, e)
	case Verbose:
		r.writeVerbose(t.ContainerID, e)
	}
}

func (r *Renderer) writeBasic(id string, e agent.Event) {
	switch e.Tag {
	case agent.EventDone:
		fmt.Fprintf(r.Out, "%s: done (%s)\n", id, e.Status)
	case agent.EventError:
		fmt.Fprintf(r.Out, "%s: error: %s\n", id, e.Msg)
	}
}

func (r *Renderer) writeCondensed(id string, e agent.Event) {
	switch e.Tag {
	case agent.EventInstallStart:
		fmt.Fprintf(r.Out, "%s: installing %s\n", id, e.Pkg)
	case agent.EventSummary:
		fmt.Fprintf(r.Out, "%s: +%d -%d\n", id, e.Added, e.Removed)
	case agent.EventError:
		fmt.Fprintf(r.Out, "%s: error: %s\n", id, e.Msg)
	case agent.EventDone:
		fmt.Fprintf(r.Out, "%s: done (%s)\n", id, e.Status)
	}
}

func (r *Renderer) writeVerbose(id string, e agent.Event) {
	switch e.Tag {
	case agent.EventDownloadStart:
		fmt.Fprintf(r.Out, "%s: download %s (%d bytes)\n", id, e.Pkg, e.Size)
	case agent.EventDownloadProgress:
		fmt.Fprintf(r.Out, "%s: download %s +%d\n", id, e.Pkg, e.Delta)
	case agent.EventInstallStart:
		fmt.Fprintf(r.Out, "%s: installing %s\n", id, e.Pkg)
	case agent.EventHook:
		fmt.Fprintf(r.Out, "%s: hook %s (%s)\n", id, e.HookName, e.HookPhase)
	case agent.EventWarning:
		fmt.Fprintf(r.Out, "%s: warning: %s\n", id, e.Msg)
	case agent.EventError:
		fmt.Fprintf(r.Out, "%s: error: %s\n", id, e.Msg)
	case agent.EventSummary:
		fmt.Fprintf(r.Out, "%s: summary +%d -%d (%d bytes)\n", id, e.Added, e.Removed, e.NetBytes)
	case agent.EventDone:
		fmt.Fprintf(r.Out, "%s: done (%s)\n", id, e.Status)
	}
}

// RenderSummary writes the final per-fleet summary in the selected
// SummaryStyle (§4.I, §8 "Summary at end").
func (r *Renderer) RenderSummary(summaries map[string]types.Summary) {
	style := r.SummaryStyle
	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	switch style {
	case SummaryTable, SummaryTableForeign:
		fmt.Fprintf(r.Out, "%-20s %8s %8s %10s %8s\n", "CONTAINER", "ADDED", "REMOVED", "NETBYTES", "OVERRIDE")
		for _, id := range ids {
			s := summaries[id]
			fmt.Fprintf(r.Out, "%-20s %8d %8d %10d %8d\n", id, s.Added, s.Removed, s.NetBytes, len(s.LocalOverrides))
		}
	default:
		for _, id := range ids {
			s := summaries[id]
			status := "ok"
			if len(s.Failed) > 0 {
				status = "failed"
			} else if len(s.Skipped) > 0 {
				status = "skipped"
			}
			fmt.Fprintf(r.Out, "%s: %s (+%d -%d, %d bytes)\n", id, status, s.Added, s.Removed, s.NetBytes)
		}
	}
}
