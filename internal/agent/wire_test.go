package agent

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/require"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
)

func TestParameterBlobRoundTrips(t *testing.T) {
	blob := ParameterBlob{
		Mode:      "Synchronize",
		Repos:     []pkgdb.Repo{{Name: "core", Servers: []string{"https://mirror"}}},
		SigPolicy: pkgdb.SigLevelRequired,
		MountPlan: []specs.Mount{{Source: "/src", Destination: "/dst"}},
		Targets:   Targets{Resident: []string{"neovim"}, Foreign: []string{"gtk3"}},
		FlagsBitmap: FlagPreview | FlagLazyLoad,
		Nonce:       uuid.New(),
	}

	data, err := EncodeParameterBlob(blob)
	require.NoError(t, err)

	got, err := DecodeParameterBlob(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, blob.Mode, got.Mode)
	require.Equal(t, blob.Targets, got.Targets)
	require.Equal(t, blob.FlagsBitmap, got.FlagsBitmap)
	require.Equal(t, blob.Nonce, got.Nonce)
}

func TestDecodeParameterBlobRejectsBadMagic(t *testing.T) {
	_, err := DecodeParameterBlob(bytes.NewReader([]byte("XXXX\x00\x01\x00\x00\x00\x00")))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentBadHandshake, e.Kind)
}

func TestDecodeParameterBlobRejectsTruncatedHeader(t *testing.T) {
	_, err := DecodeParameterBlob(bytes.NewReader([]byte("PW")))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentBadHandshake, e.Kind)
}

func TestEventRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	want := Event{Tag: EventSummary, Added: 3, Removed: 1, NetBytes: 4096}
	require.NoError(t, WriteEvent(&buf, want))

	got, err := ReadEvent(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadEventReturnsRawEOFAtStreamEnd(t *testing.T) {
	_, err := ReadEvent(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestReadEventTruncatedAfterTagIsProtocolError(t *testing.T) {
	_, err := ReadEvent(bytes.NewReader([]byte{byte(EventDone)}))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindAgentProtocolTruncated, e.Kind)
}

func TestErrDoneStatusFormatsKind(t *testing.T) {
	require.Equal(t, DoneStatus("Err(Agent(Package))"), ErrDoneStatus("Agent(Package)"))
}
