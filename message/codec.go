package message

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/momentics/hioload-wamp/api"
)

// Encode serializes m as a JSON envelope `[kind, field...]`.
func Encode(m Message) ([]byte, error) {
	envelope := append([]any{int(m.Kind())}, m.fields()...)
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return data, nil
}

// Peek validates that raw is a JSON array led by an integer and returns that
// kind code without decoding the remaining fields.
func Peek(raw []byte) (Kind, error) {
	if !gjson.ValidBytes(raw) {
		return 0, fmt.Errorf("%w: envelope is not valid JSON", api.ErrProtocol)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return 0, fmt.Errorf("%w: envelope is not an array", api.ErrProtocol)
	}
	code := doc.Get("0")
	if code.Type != gjson.Number || float64(code.Int()) != code.Num {
		return 0, fmt.Errorf("%w: envelope kind %q is not an integer", api.ErrProtocol, code.Raw)
	}
	return Kind(code.Int()), nil
}

// Decode parses a JSON envelope into its typed message. An unrecognized kind
// code yields an error wrapping api.ErrUnknownMessageKind; every other failure
// wraps api.ErrProtocol.
func Decode(raw []byte) (Message, error) {
	kind, err := Peek(raw)
	if err != nil {
		return nil, err
	}
	d, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", api.ErrUnknownMessageKind, kind)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrProtocol, err)
	}
	fields := elems[1:]
	if len(fields) < d.min || len(fields) > d.max {
		return nil, fmt.Errorf("%w: %s expects %d..%d fields, got %d", api.ErrProtocol, kind, d.min, d.max, len(fields))
	}

	r := &fieldReader{kind: kind, fields: fields}
	msg := d.build(r)
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

type decoder struct {
	min, max int
	build    func(r *fieldReader) Message
}

var decoders = map[Kind]decoder{
	KindHello: {2, 2, func(r *fieldReader) Message {
		return &Hello{Realm: r.str(0), Details: r.dict(1)}
	}},
	KindWelcome: {2, 2, func(r *fieldReader) Message {
		return &Welcome{Session: r.id(0), Details: r.dict(1)}
	}},
	KindAbort: {2, 2, func(r *fieldReader) Message {
		return &Abort{Details: r.dict(0), Reason: r.str(1)}
	}},
	KindChallenge: {2, 2, func(r *fieldReader) Message {
		return &Challenge{AuthMethod: r.str(0), Extra: r.dict(1)}
	}},
	KindAuthenticate: {2, 2, func(r *fieldReader) Message {
		return &Authenticate{Signature: r.str(0), Extra: r.dict(1)}
	}},
	KindGoodbye: {2, 2, func(r *fieldReader) Message {
		return &Goodbye{Details: r.dict(0), Reason: r.str(1)}
	}},
	KindError: {4, 6, func(r *fieldReader) Message {
		return &Error{
			RequestType: Kind(r.id(0)),
			Request:     r.id(1),
			Details:     r.dict(2),
			URI:         r.str(3),
			Args:        r.list(4),
			Kwargs:      r.dict(5),
		}
	}},
	KindPublish: {3, 5, func(r *fieldReader) Message {
		return &Publish{Request: r.id(0), Options: r.dict(1), Topic: r.str(2), Args: r.list(3), Kwargs: r.dict(4)}
	}},
	KindSubscribe: {3, 3, func(r *fieldReader) Message {
		return &Subscribe{Request: r.id(0), Options: r.dict(1), Topic: r.str(2)}
	}},
	KindSubscribed: {2, 2, func(r *fieldReader) Message {
		return &Subscribed{Request: r.id(0), Subscription: r.id(1)}
	}},
	KindEvent: {3, 5, func(r *fieldReader) Message {
		return &Event{
			Subscription: r.id(0),
			Publication:  r.id(1),
			Details:      r.dict(2),
			Args:         r.list(3),
			Kwargs:       r.dict(4),
		}
	}},
	KindCall: {3, 5, func(r *fieldReader) Message {
		return &Call{Request: r.id(0), Options: r.dict(1), Procedure: r.str(2), Args: r.list(3), Kwargs: r.dict(4)}
	}},
	KindResult: {2, 4, func(r *fieldReader) Message {
		return &Result{Request: r.id(0), Details: r.dict(1), Args: r.list(2), Kwargs: r.dict(3)}
	}},
	KindRegister: {3, 3, func(r *fieldReader) Message {
		return &Register{Request: r.id(0), Options: r.dict(1), Procedure: r.str(2)}
	}},
	KindRegistered: {2, 2, func(r *fieldReader) Message {
		return &Registered{Request: r.id(0), Registration: r.id(1)}
	}},
	KindInvocation: {3, 5, func(r *fieldReader) Message {
		return &Invocation{
			Request:      r.id(0),
			Registration: r.id(1),
			Details:      r.dict(2),
			Args:         r.list(3),
			Kwargs:       r.dict(4),
		}
	}},
	KindYield: {2, 4, func(r *fieldReader) Message {
		return &Yield{Request: r.id(0), Options: r.dict(1), Args: r.list(2), Kwargs: r.dict(3)}
	}},
}

// fieldReader decodes positional fields, keeping the first error.
// Reads past the end yield zero values; optional trailing fields rely on that.
type fieldReader struct {
	kind   Kind
	fields []json.RawMessage
	err    error
}

func (r *fieldReader) decode(i int, dst any, what string) {
	if r.err != nil || i >= len(r.fields) {
		return
	}
	if err := json.Unmarshal(r.fields[i], dst); err != nil {
		r.err = fmt.Errorf("%w: %s field %d is not %s: %v", api.ErrProtocol, r.kind, i+1, what, err)
	}
}

func (r *fieldReader) id(i int) uint64 {
	var v uint64
	r.decode(i, &v, "an id")
	return v
}

func (r *fieldReader) str(i int) string {
	var v string
	r.decode(i, &v, "a string")
	return v
}

func (r *fieldReader) dict(i int) map[string]any {
	v := map[string]any{}
	r.decode(i, &v, "a dict")
	if v == nil {
		v = map[string]any{}
	}
	return v
}

func (r *fieldReader) list(i int) []any {
	var v []any
	r.decode(i, &v, "a list")
	return v
}
