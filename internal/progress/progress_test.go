package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pacwrap/pacwrap/internal/agent"
	"github.com/pacwrap/pacwrap/internal/types"
)

func TestBasicStyleOnlyPrintsDoneAndError(t *testing.T) {
	var buf bytes.Buffer
	r := &Renderer{Out: &buf, Style: Basic}
	r.Consume(toChan([]Tagged{
		{ContainerID: "editor", Event: agent.Event{Tag: agent.EventInstallStart, Pkg: "neovim"}},
		{ContainerID: "editor", Event: agent.Event{Tag: agent.EventDone, Status: agent.StatusOk}},
	}))
	out := buf.String()
	require.NotContains(t, out, "neovim")
	require.Contains(t, out, "editor: done (Ok)")
}

func TestVerboseStylePrintsInstallStart(t *testing.T) {
	var buf bytes.Buffer
	r := &Renderer{Out: &buf, Style: Verbose}
	r.Consume(toChan([]Tagged{
		{ContainerID: "base", Event: agent.Event{Tag: agent.EventInstallStart, Pkg: "neovim"}},
	}))
	require.Contains(t, buf.String(), "base: installing neovim")
}

func TestRenderSummaryTableHasHeader(t *testing.T) {
	var buf bytes.Buffer
	r := &Renderer{Out: &buf, SummaryStyle: SummaryTable}
	r.RenderSummary(map[string]types.Summary{
		"base": {ContainerID: "base", Added: 3},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "CONTAINER")
}

func toChan(items []Tagged) <-chan Tagged {
	ch := make(chan Tagged, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}
