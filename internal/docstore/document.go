package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Document maps dotted field paths to JSON-encoded values.
type Document map[string]json.RawMessage

// Value encodes v for storage. Values the JSON encoder rejects are stored as null.
func Value(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// Put sets field to v and returns the document for chaining.
func (d Document) Put(field string, v any) Document {
	d[field] = Value(v)
	return d
}

// Clone returns a copy that shares no maps with d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Snapshot is an immutable view of a document at one point in time.
type Snapshot struct {
	Path   string
	Exists bool
	Fields Document
}

// Has reports whether field is present.
func (s Snapshot) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}

// Decode unmarshals field into v. A missing field leaves v untouched.
func (s Snapshot) Decode(field string, v any) error {
	raw, ok := s.Fields[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s.%s: %w", s.Path, field, err)
	}
	return nil
}

func (s Snapshot) String(field string) string {
	var v string
	_ = s.Decode(field, &v)
	return v
}

func (s Snapshot) Int(field string) int {
	var v int
	_ = s.Decode(field, &v)
	return v
}

func (s Snapshot) Float(field string) float64 {
	var v float64
	_ = s.Decode(field, &v)
	return v
}

func (s Snapshot) Bool(field string) bool {
	var v bool
	_ = s.Decode(field, &v)
	return v
}

func (s Snapshot) Time(field string) time.Time {
	var v time.Time
	_ = s.Decode(field, &v)
	return v
}

// Children lists the distinct path segments directly below prefix, sorted.
// For fields "players.a.score" and "players.b.name", Children("players") is [a b].
func (s Snapshot) Children(prefix string) []string {
	prefix += "."
	seen := make(map[string]struct{})
	for field := range s.Fields {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		rest := field[len(prefix):]
		if i := strings.IndexByte(rest, '.'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			seen[rest] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OpKind distinguishes field writes.
type OpKind int

const (
	OpSet OpKind = iota
	OpIncrement
)

// Op is one field mutation inside an Update.
type Op struct {
	Kind  OpKind
	Field string
	Value json.RawMessage
	Delta int64
}

// Set writes v into field.
func Set(field string, v any) Op {
	return Op{Kind: OpSet, Field: field, Value: Value(v)}
}

// Increment adds delta to an integer field. A missing field counts as zero.
func Increment(field string, delta int64) Op {
	return Op{Kind: OpIncrement, Field: field, Delta: delta}
}

// Apply runs ops against fields in place.
func Apply(fields Document, ops []Op) error {
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			fields[op.Field] = op.Value
		case OpIncrement:
			current := int64(0)
			if raw, ok := fields[op.Field]; ok {
				n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
				if err != nil {
					return fmt.Errorf("increment %s: %w", op.Field, ErrNotInteger)
				}
				current = n
			}
			fields[op.Field] = json.RawMessage(strconv.FormatInt(current+op.Delta, 10))
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}
	return nil
}

// CondKind distinguishes update preconditions.
type CondKind int

const (
	CondEquals CondKind = iota
	CondNotEquals
	CondExists
	CondAbsent
)

// Condition guards an Update.
type Condition struct {
	Kind  CondKind
	Field string
	Value json.RawMessage
}

func Equals(field string, v any) Condition {
	return Condition{Kind: CondEquals, Field: field, Value: Value(v)}
}

// NotEquals holds when field is absent or differs from v.
func NotEquals(field string, v any) Condition {
	return Condition{Kind: CondNotEquals, Field: field, Value: Value(v)}
}

func Exists(field string) Condition {
	return Condition{Kind: CondExists, Field: field}
}

func Absent(field string) Condition {
	return Condition{Kind: CondAbsent, Field: field}
}

// Holds evaluates the condition against a document's fields.
func (c Condition) Holds(fields Document) bool {
	raw, ok := fields[c.Field]
	switch c.Kind {
	case CondExists:
		return ok
	case CondAbsent:
		return !ok
	case CondEquals:
		return ok && sameJSON(raw, c.Value)
	case CondNotEquals:
		return !ok || !sameJSON(raw, c.Value)
	}
	return false
}

// CheckAll returns ErrConditionFailed naming the first condition that does not hold.
func CheckAll(fields Document, conds []Condition) error {
	for _, c := range conds {
		if !c.Holds(fields) {
			return fmt.Errorf("%w: %s", ErrConditionFailed, c.Field)
		}
	}
	return nil
}

func sameJSON(a, b json.RawMessage) bool {
	a, b = bytes.TrimSpace(a), bytes.TrimSpace(b)
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
