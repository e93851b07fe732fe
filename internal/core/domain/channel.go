package domain

import (
	"fmt"
	"strings"
)

type (
	GroupID   int64
	ChannelID int64
)

// NoChannel is never allocated.
const NoChannel ChannelID = 0

type InputKind int

const (
	NoInput InputKind = iota
	MonoInput
	StereoInput
	MidiInput
)

func (k InputKind) String() string {
	switch k {
	case MonoInput:
		return "mono"
	case StereoInput:
		return "stereo"
	case MidiInput:
		return "midi"
	default:
		return "none"
	}
}

// ParseInputKind treats the empty string as no input.
func ParseInputKind(s string) (InputKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoInput, nil
	case "mono":
		return MonoInput, nil
	case "stereo":
		return StereoInput, nil
	case "midi":
		return MidiInput, nil
	}
	return NoInput, fmt.Errorf("unknown input kind %q", s)
}

// InputSelection is the input source assigned to a subchannel.
type InputSelection struct {
	Kind         InputKind `json:"kind"`
	FirstChannel int       `json:"first_channel"`
	MidiDevice   int       `json:"midi_device"`
}

// NoInputSelection is the input of a freshly created subchannel.
func NoInputSelection() InputSelection {
	return InputSelection{Kind: NoInput, FirstChannel: -1, MidiDevice: -1}
}

func (s InputSelection) IsNoInput() bool {
	return s.Kind == NoInput
}

type Subchannel struct {
	ID         ChannelID      `json:"id"`
	GroupID    GroupID        `json:"group_id"`
	GroupIndex int            `json:"group_index"`
	Input      InputSelection `json:"input"`
	Primary    bool           `json:"primary"`
}

// ChannelGroup is a read-only view of one local track group.
type ChannelGroup struct {
	ID          GroupID      `json:"id"`
	Index       int          `json:"index"`
	Name        string       `json:"name"`
	Highlighted bool         `json:"highlighted"`
	Subchannels []Subchannel `json:"subchannels"`
}

// GroupHandle is returned by AddGroup. Index is only valid until the next removal.
type GroupHandle struct {
	ID        GroupID   `json:"id"`
	Index     int       `json:"index"`
	PrimaryID ChannelID `json:"primary_id"`
}

type ViewMode int

const (
	ViewFull ViewMode = iota
	ViewMini
	ViewFullScreen
)

func (m ViewMode) String() string {
	switch m {
	case ViewMini:
		return "mini"
	case ViewFullScreen:
		return "full-screen"
	default:
		return "full"
	}
}

// ParseViewMode defaults the empty string to ViewFull.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(s) {
	case "full", "":
		return ViewFull, nil
	case "mini":
		return ViewMini, nil
	case "full-screen", "fullscreen":
		return ViewFullScreen, nil
	}
	return ViewFull, fmt.Errorf("unknown view mode %q", s)
}

// Capabilities is consumed by the registry; it is derived from the view mode
// and from what the host and the session support.
type Capabilities struct {
	ViewMode             ViewMode
	SubchannelsSupported bool
	FullScreenSupported  bool
}

// CanCreateSubchannels is false in the mini view.
func (c Capabilities) CanCreateSubchannels() bool {
	return c.ViewMode != ViewMini && c.SubchannelsSupported
}

func (c Capabilities) CanUseFullScreen() bool {
	return c.ViewMode != ViewMini && c.FullScreenSupported
}

// InputsSnapshot is what settings persistence stores for the local inputs.
type InputsSnapshot struct {
	Groups []GroupSnapshot `json:"groups"`
}

type GroupSnapshot struct {
	Name        string           `json:"name"`
	Subchannels []InputSelection `json:"subchannels"`
}
