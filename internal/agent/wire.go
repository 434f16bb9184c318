// Package agent implements the binary parameter blob and event stream
// protocol described in §4.H, plus the driver-side (parent) half of
// launching and talking to the sandboxed in-container agent.
//
// Wire format (§3 "Agent parameter blob", "Event stream"):
//
//	parameter blob: magic(4B) | version(u16) | length(u32) | payload
//	event frame:    tag(u8)   | length(u32)  | payload
//
// The payload of both is a self-describing binary record; this
// implementation uses encoding/gob for the payload body, which is Go's
// own self-describing binary encoding, behind the custom length-prefixed
// framing called for below.
package agent

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/pacwrap/pacwrap/internal/errs"
	"github.com/pacwrap/pacwrap/internal/pkgdb"
)

// Magic identifies a pacwrap agent parameter blob.
var Magic = [4]byte{'P', 'W', 'R', 'P'}

// Version is the current parameter blob wire version. The agent rejects
// any other version with BadHandshake (§4.H).
const Version uint16 = 1

// Targets is the resident/foreign target split carried in the blob.
type Targets struct {
	Resident []string
	Foreign  []string
}

// ParameterBlob is the payload described in §3 "Agent parameter blob".
type ParameterBlob struct {
	Mode         string
	Repos        []pkgdb.Repo
	SigPolicy    pkgdb.SigLevel
	MountPlan    []specs.Mount
	EnvAllowlist []string
	Targets      Targets
	FlagsBitmap  uint32
	Nonce        uuid.UUID
}

// Flag bits for ParameterBlob.FlagsBitmap (§3 "flags").
const (
	FlagPreview uint32 = 1 << iota
	FlagForceForeign
	FlagLazyLoad
	FlagDisableSandbox
)

// EncodeParameterBlob serializes blob with the magic/version/length header.
func EncodeParameterBlob(blob ParameterBlob) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(blob); err != nil {
		return nil, errs.New(errs.KindInternal, "agent.EncodeParameterBlob", err)
	}

	var out bytes.Buffer
	out.Write(Magic[:])
	binary.Write(&out, binary.BigEndian, Version)
	binary.Write(&out, binary.BigEndian, uint32(payload.Len()))
	out.Write(payload.Bytes())
	return out.Bytes(), nil
}

// DecodeParameterBlob reads and validates a parameter blob from r. An
// unrecognized magic or version yields BadHandshake (§4.H).
func DecodeParameterBlob(r io.Reader) (ParameterBlob, error) {
	var header struct {
		Magic   [4]byte
		Version uint16
		Length  uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return ParameterBlob{}, errs.New(errs.KindAgentBadHandshake, "agent.DecodeParameterBlob", err)
	}
	if header.Magic != Magic {
		return ParameterBlob{}, errs.New(errs.KindAgentBadHandshake, "agent.DecodeParameterBlob", fmt.Errorf("bad magic %q", header.Magic))
	}
	if header.Version != Version {
		return ParameterBlob{}, errs.New(errs.KindAgentBadHandshake, "agent.DecodeParameterBlob", fmt.Errorf("unsupported version %d", header.Version))
	}
	payload := io.LimitReader(r, int64(header.Length))
	var blob ParameterBlob
	if err := gob.NewDecoder(payload).Decode(&blob); err != nil {
		return ParameterBlob{}, errs.New(errs.KindAgentBadHandshake, "agent.DecodeParameterBlob", err)
	}
	return blob, nil
}

// EventTag is the sum type over event kinds (§3 "Event stream").
type EventTag uint8

const (
	EventDownloadStart EventTag = iota
	EventDownloadProgress
	EventInstallStart
	EventHook
	EventWarning
	EventError
	EventSummary
	EventDone
)

// DoneStatus is the status carried by the terminal Done event.
type DoneStatus string

const (
	StatusOk DoneStatus = "Ok"
)

// ErrDoneStatus formats a Done{Err(kind)} status string.
func ErrDoneStatus(kind string) DoneStatus { return DoneStatus("Err(" + kind + ")") }

// Event is the single carrier type for every event variant; unused fields
// for a given Tag are left zero. Kept as one type (rather than an
// interface per variant) per §9 "Sum types over inheritance".
type Event struct {
	Tag EventTag

	Pkg   string // DownloadStart, DownloadProgress, InstallStart
	Size  int64  // DownloadStart
	Delta int64  // DownloadProgress

	HookName  string // Hook
	HookPhase string // Hook

	Msg     string // Warning, Error
	ErrKind string // Error

	Added    int   // Summary
	Removed  int   // Summary
	NetBytes int64 // Summary

	Status DoneStatus // Done
}

// WriteEvent writes one frame: tag(u8) | length(u32) | gob(payload).
func WriteEvent(w io.Writer, e Event) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(e); err != nil {
		return errs.New(errs.KindInternal, "agent.WriteEvent", err)
	}
	if _, err := w.Write([]byte{byte(e.Tag)}); err != nil {
		return errs.New(errs.KindIO, "agent.WriteEvent", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(payload.Len())); err != nil {
		return errs.New(errs.KindIO, "agent.WriteEvent", err)
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return errs.New(errs.KindIO, "agent.WriteEvent", err)
	}
	return nil
}

// ReadEvent reads one frame from r.
func ReadEvent(r io.Reader) (Event, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Event{}, err // EOF propagates to caller as "stream ended"
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Event{}, errs.New(errs.KindAgentProtocolTruncated, "agent.ReadEvent", err)
	}
	payload := io.LimitReader(r, int64(length))
	var e Event
	if err := gob.NewDecoder(payload).Decode(&e); err != nil {
		return Event{}, errs.New(errs.KindAgentProtocolTruncated, "agent.ReadEvent", err)
	}
	e.Tag = EventTag(tag[0])
	return e, nil
}
