package dbus

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// A MatchRule selects which signals (and, for a monitoring connection,
// which messages of any type) a [Connection] should be delivered. It
// mirrors the match rule grammar the DBus specification defines for
// the AddMatch bus method: every field is optional, and an empty
// MatchRule matches every signal.
type MatchRule struct {
	Type          MessageType
	Sender        string
	Path          ObjectPath
	PathNamespace ObjectPath
	Destination   string
	Interface     string
	Member        string
	Eavesdrop     bool

	// Args restricts the rule to signals whose Nth body argument,
	// interpreted as a string, equals the given value. Keys are
	// argument indices in the range 0-63.
	Args map[int]string
	// ArgPaths is like Args, but matches if the Nth argument is an
	// object path equal to, or a child of, the given value.
	ArgPaths map[int]string
}

// NewMatchRule returns a MatchRule that matches every signal. Use the
// builder methods to narrow it.
func NewMatchRule() MatchRule {
	return MatchRule{Type: MessageSignal}
}

func (r MatchRule) WithSender(s string) MatchRule        { r.Sender = s; return r }
func (r MatchRule) WithPath(p ObjectPath) MatchRule       { r.Path = p; return r }
func (r MatchRule) WithPathNamespace(p ObjectPath) MatchRule {
	r.PathNamespace = p
	return r
}
func (r MatchRule) WithDestination(d string) MatchRule { r.Destination = d; return r }
func (r MatchRule) WithInterface(i string) MatchRule   { r.Interface = i; return r }
func (r MatchRule) WithMember(m string) MatchRule      { r.Member = m; return r }
func (r MatchRule) WithEavesdrop(b bool) MatchRule     { r.Eavesdrop = b; return r }

// WithArg restricts the rule to messages whose i-th argument equals
// val, interpreted as a string.
func (r MatchRule) WithArg(i int, val string) MatchRule {
	r2 := r
	r2.Args = maps.Clone(r.Args)
	if r2.Args == nil {
		r2.Args = map[int]string{}
	}
	r2.Args[i] = val
	return r2
}

// WithArgPath restricts the rule to messages whose i-th argument is an
// object path equal to, or nested under, val.
func (r MatchRule) WithArgPath(i int, val string) MatchRule {
	r2 := r
	r2.ArgPaths = maps.Clone(r.ArgPaths)
	if r2.ArgPaths == nil {
		r2.ArgPaths = map[int]string{}
	}
	r2.ArgPaths[i] = val
	return r2
}

// String returns the canonical match rule string, as sent to the
// message bus's AddMatch and RemoveMatch methods and used as the
// dedup key for installed rules.
func (r MatchRule) String() string {
	var parts []string
	kv := func(k, v string) {
		parts = append(parts, k+"="+quoteMatchArg(v))
	}
	if r.Type != MessageInvalid {
		kv("type", matchTypeString(r.Type))
	}
	if r.Sender != "" {
		kv("sender", r.Sender)
	}
	if r.Path != "" {
		kv("path", string(r.Path))
	}
	if r.PathNamespace != "" {
		kv("path_namespace", string(r.PathNamespace))
	}
	if r.Destination != "" {
		kv("destination", r.Destination)
	}
	if r.Interface != "" {
		kv("interface", r.Interface)
	}
	if r.Member != "" {
		kv("member", r.Member)
	}
	if r.Eavesdrop {
		kv("eavesdrop", "true")
	}
	for _, i := range slices.Sorted(maps.Keys(r.Args)) {
		kv("arg"+strconv.Itoa(i), r.Args[i])
	}
	for _, i := range slices.Sorted(maps.Keys(r.ArgPaths)) {
		kv("arg"+strconv.Itoa(i)+"path", r.ArgPaths[i])
	}
	return strings.Join(parts, ",")
}

func matchTypeString(t MessageType) string {
	switch t {
	case MethodCall:
		return "method_call"
	case MethodReturn:
		return "method_return"
	case MessageError:
		return "error"
	case MessageSignal:
		return "signal"
	default:
		return ""
	}
}

func quoteMatchArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Matches reports whether m satisfies the rule, including the Args
// and ArgPaths restrictions by decoding m's body dynamically as
// needed. It is used client-side to re-filter the union stream of
// signals a connection receives when more than one MatchRule is
// active.
func (r MatchRule) Matches(m *Message) bool {
	if r.Type != MessageInvalid && r.Type != m.Type {
		return false
	}
	if r.Sender != "" && r.Sender != m.Sender {
		return false
	}
	if r.Path != "" && r.Path != m.Path {
		return false
	}
	if r.PathNamespace != "" && m.Path != r.PathNamespace && !isPathChild(m.Path, r.PathNamespace) {
		return false
	}
	if r.Destination != "" && r.Destination != m.Destination {
		return false
	}
	if r.Interface != "" && r.Interface != m.Interface {
		return false
	}
	if r.Member != "" && r.Member != m.Member {
		return false
	}
	if len(r.Args) == 0 && len(r.ArgPaths) == 0 {
		return true
	}

	reader := NewArgReader(context.Background(), m)
	idx := 0
	for !reader.Done() {
		v, err := reader.NextDynamic()
		if err != nil {
			return false
		}
		if want, ok := r.Args[idx]; ok {
			s, ok := v.(string)
			if !ok || s != want {
				return false
			}
		}
		if want, ok := r.ArgPaths[idx]; ok {
			s, ok := v.(string)
			if op, isOP := v.(ObjectPath); isOP {
				s, ok = string(op), true
			}
			if !ok || (s != want && !isPathChild(ObjectPath(s), ObjectPath(want))) {
				return false
			}
		}
		idx++
	}
	return true
}

func isPathChild(p, prefix ObjectPath) bool {
	if prefix == "/" {
		return true
	}
	ps, pres := string(p), string(prefix)
	return strings.HasPrefix(ps, pres+"/")
}
