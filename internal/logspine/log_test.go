package logspine

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitJSONWritesTimestampedLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Str("k", "v").Msg("hello")
	require.Contains(t, buf.String(), `"k":"v"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestWithComponentTagsChildLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithComponent("txn").Info().Msg("staged")
	require.Contains(t, buf.String(), `"component":"txn"`)
}

func TestTransactionLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacwrap.log")
	tl, err := OpenTransactionLog(path)
	require.NoError(t, err)

	require.NoError(t, tl.Append(LogEntry{OperationID: "op-1", ContainerID: "editor", Event: "Planning"}))
	require.NoError(t, tl.Append(LogEntry{OperationID: "op-1", ContainerID: "editor", Event: "Staged"}))
	require.NoError(t, tl.Close())

	entries, err := ReadTransactionLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Planning", entries[0].Event)
	require.Equal(t, "Staged", entries[1].Event)
	require.False(t, entries[0].Timestamp.IsZero())
}

func TestTransactionLogAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pacwrap.log")
	tl, err := OpenTransactionLog(path)
	require.NoError(t, err)
	require.NoError(t, tl.Append(LogEntry{OperationID: "op-1", Event: "Committed"}))
	require.NoError(t, tl.Close())

	tl2, err := OpenTransactionLog(path)
	require.NoError(t, err)
	require.NoError(t, tl2.Append(LogEntry{OperationID: "op-1", Event: "Published"}))
	require.NoError(t, tl2.Close())

	entries, err := ReadTransactionLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Committed", entries[0].Event)
	require.Equal(t, "Published", entries[1].Event)
}
