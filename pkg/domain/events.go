package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire vocabulary exchanged over the websocket boundary. Every frame is an
// envelope {"type": ..., "payload": ...}; payloads are typed per tag and
// validated when decoded.

const (
	EventGenerationStarted   = "generation-started"
	EventPairedStarted       = "paired-started"
	EventProgress            = "progress"
	EventComplete            = "complete"
	EventFailed              = "failed"
	EventInsufficientCredits = "insufficient-credits"
	EventCreditsUpdated      = "credits-updated"

	CommandStartSingle = "start-single"
	CommandStartPaired = "start-paired"
	CommandRetry       = "retry"
)

// ErrUnknownType indicates an envelope carrying an unrecognized tag.
var ErrUnknownType = errors.New("unknown message type")

// Event is a server-to-client notification.
type Event interface {
	EventType() string
}

// Command is a client-to-server request.
type Command interface {
	CommandType() string
}

type GenerationStarted struct {
	GenerationID string `json:"generationId"`
}

type PairedStarted struct {
	GroupID       string   `json:"groupId"`
	Prompt        string   `json:"prompt"`
	Title         string   `json:"title"`
	CoverImage    string   `json:"coverImage"`
	GenerationIDs []string `json:"generationIds"`
}

type Progress struct {
	GenerationID string `json:"generationId"`
	Progress     int    `json:"progress"`
	Message      string `json:"message,omitempty"`
}

type Complete struct {
	GenerationID string    `json:"generationId"`
	Duration     int       `json:"duration"`
	WaveformData []float64 `json:"waveformData"`
}

type Failed struct {
	GenerationID string `json:"generationId"`
	Error        string `json:"error"`
}

type InsufficientCredits struct {
	Prompt string `json:"prompt"`
}

type CreditsUpdated struct {
	Credits int `json:"credits"`
}

func (GenerationStarted) EventType() string   { return EventGenerationStarted }
func (PairedStarted) EventType() string       { return EventPairedStarted }
func (Progress) EventType() string            { return EventProgress }
func (Complete) EventType() string            { return EventComplete }
func (Failed) EventType() string              { return EventFailed }
func (InsufficientCredits) EventType() string { return EventInsufficientCredits }
func (CreditsUpdated) EventType() string      { return EventCreditsUpdated }

type StartSingle struct {
	GenerationID string `json:"generationId"`
	Prompt       string `json:"prompt"`
}

type StartPaired struct {
	GroupID string `json:"groupId"`
	Prompt  string `json:"prompt"`
}

type Retry struct {
	GenerationID string `json:"generationId"`
	Prompt       string `json:"prompt,omitempty"`
}

func (StartSingle) CommandType() string { return CommandStartSingle }
func (StartPaired) CommandType() string { return CommandStartPaired }
func (Retry) CommandType() string       { return CommandRetry }

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent wraps an event in its tagged envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	return encode(ev.EventType(), ev)
}

// EncodeCommand wraps a command in its tagged envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	return encode(cmd.CommandType(), cmd)
}

func encode(tag string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", tag, err)
	}
	return json.Marshal(envelope{Type: tag, Payload: raw})
}

// DecodeEvent parses a server-to-client frame into its typed event.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	var ev Event
	switch env.Type {
	case EventGenerationStarted:
		ev = &GenerationStarted{}
	case EventPairedStarted:
		ev = &PairedStarted{}
	case EventProgress:
		ev = &Progress{}
	case EventComplete:
		ev = &Complete{}
	case EventFailed:
		ev = &Failed{}
	case EventInsufficientCredits:
		ev = &InsufficientCredits{}
	case EventCreditsUpdated:
		ev = &CreditsUpdated{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return ev, nil
}

// DecodeCommand parses a client-to-server frame into its typed command.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command envelope: %w", err)
	}
	var cmd Command
	switch env.Type {
	case CommandStartSingle:
		cmd = &StartSingle{}
	case CommandStartPaired:
		cmd = &StartPaired{}
	case CommandRetry:
		cmd = &Retry{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(env.Payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return cmd, nil
}
