// Package message defines the closed set of WAMP v2 messages this client
// exchanges and the JSON envelope codec that maps them to and from
// `[kind, field...]` arrays.
package message

import "strconv"

// Kind is the integer discriminator leading every envelope.
type Kind int

const (
	KindHello        Kind = 1
	KindWelcome      Kind = 2
	KindAbort        Kind = 3
	KindChallenge    Kind = 4
	KindAuthenticate Kind = 5
	KindGoodbye      Kind = 6
	KindError        Kind = 8
	KindPublish      Kind = 16
	KindSubscribe    Kind = 32
	KindSubscribed   Kind = 33
	KindEvent        Kind = 36
	KindCall         Kind = 48
	KindResult       Kind = 50
	KindRegister     Kind = 64
	KindRegistered   Kind = 65
	KindInvocation   Kind = 68
	KindYield        Kind = 70
)

var kindNames = map[Kind]string{
	KindHello:        "hello",
	KindWelcome:      "welcome",
	KindAbort:        "abort",
	KindChallenge:    "challenge",
	KindAuthenticate: "authenticate",
	KindGoodbye:      "goodbye",
	KindError:        "error",
	KindPublish:      "publish",
	KindSubscribe:    "subscribe",
	KindSubscribed:   "subscribed",
	KindEvent:        "event",
	KindCall:         "call",
	KindResult:       "result",
	KindRegister:     "register",
	KindRegistered:   "registered",
	KindInvocation:   "invocation",
	KindYield:        "yield",
}

// String returns the lower-case message name, or the numeric code when unknown.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return strconv.Itoa(int(k))
}

// Known reports whether k is one of the kinds this package can decode.
func (k Kind) Known() bool {
	_, ok := decoders[k]
	return ok
}

// Close reasons used in GOODBYE and ABORT.
const (
	ReasonCloseRealm     = "wamp.close.close_realm"
	ReasonGoodbyeAndOut  = "wamp.close.goodbye_and_out"
	ReasonSystemShutdown = "wamp.close.system_shutdown"
)
