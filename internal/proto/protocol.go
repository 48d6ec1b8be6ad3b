package proto

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed protocol.yaml
var defaultDefinition []byte

// ErrUnknownSystemKind is returned when a system message kind is not declared
// in the protocol table. It signals a programming error, not a client error.
var ErrUnknownSystemKind = errors.New("unknown system message kind")

// SystemKind names an outbound system message in the protocol table.
type SystemKind string

const (
	KindError               SystemKind = "ERROR"
	KindNotification        SystemKind = "NOTIFICATION"
	KindRoomsList           SystemKind = "ROOMS_LIST"
	KindRoomCreated         SystemKind = "ROOM_CREATED"
	KindNewRoom             SystemKind = "NEW_ROOM"
	KindMessageNotification SystemKind = "MESSAGE_NOTIFICATION"
	KindHistory             SystemKind = "HISTORY"
	KindMessage             SystemKind = "MESSAGE"
	KindSystem              SystemKind = "SYSTEM"
)

// MessageSpec declares the wire type of a message and its required fields.
type MessageSpec struct {
	Type     string   `yaml:"type"`
	Required []string `yaml:"required"`
}

type definition struct {
	Version        string                 `yaml:"version"`
	UserMessages   map[string]MessageSpec `yaml:"user_messages"`
	SystemMessages map[string]MessageSpec `yaml:"system_messages"`
	ErrorCodes     map[string]string      `yaml:"error_codes"`
}

// Protocol is the immutable lookup table built from the protocol definition.
// It is safe for concurrent use.
type Protocol struct {
	version  string
	required map[string][]string
	system   map[SystemKind]string
}

// Envelope is a validated inbound message.
type Envelope struct {
	Type   string
	Fields map[string]json.RawMessage
	Raw    []byte
}

// Default returns the protocol built from the embedded definition.
func Default() (*Protocol, error) {
	return Parse(defaultDefinition)
}

// Load reads a protocol definition from path. An empty path selects the
// embedded definition.
func Load(path string) (*Protocol, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	return Parse(data)
}

// Parse builds a Protocol from a yaml definition.
func Parse(data []byte) (*Protocol, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse protocol: %w", err)
	}
	if len(def.UserMessages) == 0 {
		return nil, errors.New("parse protocol: no user messages declared")
	}

	p := &Protocol{
		version:  def.Version,
		required: make(map[string][]string, len(def.UserMessages)),
		system:   make(map[SystemKind]string, len(def.SystemMessages)),
	}
	for name, spec := range def.UserMessages {
		if spec.Type == "" {
			return nil, fmt.Errorf("parse protocol: user message %s has no type", name)
		}
		p.required[spec.Type] = append([]string(nil), spec.Required...)
	}
	for name, spec := range def.SystemMessages {
		if spec.Type == "" {
			return nil, fmt.Errorf("parse protocol: system message %s has no type", name)
		}
		p.system[SystemKind(name)] = spec.Type
	}
	for _, code := range []string{CodeInvalidMobile, CodeInvalidMessage, CodeRoomNotFound, CodeAccessDenied, CodeConnectionError} {
		if _, ok := def.ErrorCodes[code]; !ok {
			return nil, fmt.Errorf("parse protocol: error code %s not declared", code)
		}
	}
	return p, nil
}

// Version reports the protocol version string.
func (p *Protocol) Version() string {
	return p.version
}

// Validate checks the shape of an inbound message. It never mutates state.
func (p *Protocol) Validate(raw []byte) (Envelope, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, &Error{Code: CodeInvalidMessage, Msg: "malformed message"}
	}

	var msgType string
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &msgType); err != nil {
			return Envelope{}, &Error{Code: CodeInvalidMessage, Msg: "message type must be a string"}
		}
	}
	required, ok := p.required[msgType]
	if !ok {
		return Envelope{}, &Error{Code: CodeInvalidMessage, Msg: "invalid message type"}
	}

	for _, name := range required {
		value, present := fields[name]
		if !present || isNull(value) {
			return Envelope{}, &Error{Code: CodeInvalidMessage, Msg: "missing required field: " + name}
		}
	}

	return Envelope{Type: msgType, Fields: fields, Raw: raw}, nil
}

// Required returns the required field names declared for a message type.
func (p *Protocol) Required(msgType string) ([]string, bool) {
	required, ok := p.required[msgType]
	if !ok {
		return nil, false
	}
	return append([]string(nil), required...), true
}

// Types lists the declared inbound message types.
func (p *Protocol) Types() []string {
	types := make([]string, 0, len(p.required))
	for t := range p.required {
		types = append(types, t)
	}
	return types
}

// SystemMessage wraps data with the wire type declared for kind.
func (p *Protocol) SystemMessage(kind SystemKind, data map[string]any) (map[string]any, error) {
	wireType, ok := p.system[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystemKind, kind)
	}
	msg := make(map[string]any, len(data)+1)
	for k, v := range data {
		msg[k] = v
	}
	msg["type"] = wireType
	return msg, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
