package message

// Message is implemented by every protocol message variant. The set is closed:
// only types in this package satisfy it.
type Message interface {
	Kind() Kind
	fields() []any
}

// Hello opens a session on a realm.
type Hello struct {
	Realm   string
	Details map[string]any
}

// Welcome confirms a session and carries its id.
type Welcome struct {
	Session uint64
	Details map[string]any
}

// Abort terminates session establishment.
type Abort struct {
	Details map[string]any
	Reason  string
}

// Challenge asks the client to authenticate.
type Challenge struct {
	AuthMethod string
	Extra      map[string]any
}

// Authenticate answers a Challenge with a ticket or signature.
type Authenticate struct {
	Signature string
	Extra     map[string]any
}

// Goodbye closes an established session.
type Goodbye struct {
	Details map[string]any
	Reason  string
}

// Error reports the failure of a request identified by RequestType and Request.
type Error struct {
	RequestType Kind
	Request     uint64
	Details     map[string]any
	URI         string
	Args        []any
	Kwargs      map[string]any
}

// Publish sends an event to a topic.
type Publish struct {
	Request uint64
	Options map[string]any
	Topic   string
	Args    []any
	Kwargs  map[string]any
}

// Subscribe requests events for a topic.
type Subscribe struct {
	Request uint64
	Options map[string]any
	Topic   string
}

// Subscribed acknowledges a Subscribe.
type Subscribed struct {
	Request      uint64
	Subscription uint64
}

// Event delivers a publication to a subscriber.
type Event struct {
	Subscription uint64
	Publication  uint64
	Details      map[string]any
	Args         []any
	Kwargs       map[string]any
}

// Call invokes a remote procedure.
type Call struct {
	Request   uint64
	Options   map[string]any
	Procedure string
	Args      []any
	Kwargs    map[string]any
}

// Result carries the outcome of a Call.
type Result struct {
	Request uint64
	Details map[string]any
	Args    []any
	Kwargs  map[string]any
}

// Register offers a procedure to the router.
type Register struct {
	Request   uint64
	Options   map[string]any
	Procedure string
}

// Registered acknowledges a Register.
type Registered struct {
	Request      uint64
	Registration uint64
}

// Invocation asks the callee to run a registered procedure.
type Invocation struct {
	Request      uint64
	Registration uint64
	Details      map[string]any
	Args         []any
	Kwargs       map[string]any
}

// Yield returns the outcome of an Invocation.
type Yield struct {
	Request uint64
	Options map[string]any
	Args    []any
	Kwargs  map[string]any
}

func (*Hello) Kind() Kind        { return KindHello }
func (*Welcome) Kind() Kind      { return KindWelcome }
func (*Abort) Kind() Kind        { return KindAbort }
func (*Challenge) Kind() Kind    { return KindChallenge }
func (*Authenticate) Kind() Kind { return KindAuthenticate }
func (*Goodbye) Kind() Kind      { return KindGoodbye }
func (*Error) Kind() Kind        { return KindError }
func (*Publish) Kind() Kind      { return KindPublish }
func (*Subscribe) Kind() Kind    { return KindSubscribe }
func (*Subscribed) Kind() Kind   { return KindSubscribed }
func (*Event) Kind() Kind        { return KindEvent }
func (*Call) Kind() Kind         { return KindCall }
func (*Result) Kind() Kind       { return KindResult }
func (*Register) Kind() Kind     { return KindRegister }
func (*Registered) Kind() Kind   { return KindRegistered }
func (*Invocation) Kind() Kind   { return KindInvocation }
func (*Yield) Kind() Kind        { return KindYield }

func (m *Hello) fields() []any        { return []any{m.Realm, dict(m.Details)} }
func (m *Welcome) fields() []any      { return []any{m.Session, dict(m.Details)} }
func (m *Abort) fields() []any        { return []any{dict(m.Details), m.Reason} }
func (m *Challenge) fields() []any    { return []any{m.AuthMethod, dict(m.Extra)} }
func (m *Authenticate) fields() []any { return []any{m.Signature, dict(m.Extra)} }
func (m *Goodbye) fields() []any      { return []any{dict(m.Details), m.Reason} }
func (m *Subscribe) fields() []any    { return []any{m.Request, dict(m.Options), m.Topic} }
func (m *Subscribed) fields() []any   { return []any{m.Request, m.Subscription} }
func (m *Register) fields() []any     { return []any{m.Request, dict(m.Options), m.Procedure} }
func (m *Registered) fields() []any   { return []any{m.Request, m.Registration} }

func (m *Error) fields() []any {
	return withPayload([]any{int(m.RequestType), m.Request, dict(m.Details), m.URI}, m.Args, m.Kwargs)
}

func (m *Publish) fields() []any {
	return withPayload([]any{m.Request, dict(m.Options), m.Topic}, m.Args, m.Kwargs)
}

func (m *Event) fields() []any {
	return withPayload([]any{m.Subscription, m.Publication, dict(m.Details)}, m.Args, m.Kwargs)
}

func (m *Call) fields() []any {
	return withPayload([]any{m.Request, dict(m.Options), m.Procedure}, m.Args, m.Kwargs)
}

func (m *Result) fields() []any {
	return withPayload([]any{m.Request, dict(m.Details)}, m.Args, m.Kwargs)
}

func (m *Invocation) fields() []any {
	return withPayload([]any{m.Request, m.Registration, dict(m.Details)}, m.Args, m.Kwargs)
}

func (m *Yield) fields() []any {
	return withPayload([]any{m.Request, dict(m.Options)}, m.Args, m.Kwargs)
}

// Challenge returns the opaque challenge string of a WAMP-CRA challenge.
func (m *Challenge) Challenge() string {
	s, _ := m.Extra["challenge"].(string)
	return s
}

// withPayload appends the optional trailing Arguments and ArgumentsKw fields.
// Arguments is written whenever ArgumentsKw is, since fields are positional.
func withPayload(head []any, args []any, kwargs map[string]any) []any {
	if len(args) == 0 && len(kwargs) == 0 {
		return head
	}
	if args == nil {
		args = []any{}
	}
	head = append(head, args)
	if len(kwargs) > 0 {
		head = append(head, kwargs)
	}
	return head
}

func dict(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
