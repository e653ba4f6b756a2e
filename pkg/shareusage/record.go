package shareusage

import (
	"slices"
	"strings"
	"time"
)

// Evidence is a single key/value pair of observed usage data, e.g. "header.user-agent".
type Evidence struct {
	Key   string
	Value string
}

// Prefix returns the part of the key before the first dot ("header" for "header.user-agent").
func (e Evidence) Prefix() string {
	prefix, _, _ := strings.Cut(e.Key, ".")
	return prefix
}

// Name returns the part of the key after the first dot.
func (e Evidence) Name() string {
	_, name, found := strings.Cut(e.Key, ".")
	if !found {
		return e.Key
	}
	return name
}

// Record is an immutable set of evidence ordered by key.
// The zero value is an empty record.
//
// Fields are kept in ascending key order, not in the order they were observed:
// records are built from maps, which carry no order. Fields, Keys and the packet
// encoders in pkg/sink all see that order. Records inside a Batch keep the order
// in which they were submitted.
type Record struct {
	fields   []Evidence
	received time.Time
}

// NewRecord copies m into a new Record, sorting the fields by key.
// Later changes to m are not visible through the record.
func NewRecord(m map[string]string) Record {
	fields := make([]Evidence, 0, len(m))
	for k, v := range m {
		fields = append(fields, Evidence{Key: k, Value: v})
	}
	slices.SortFunc(fields, func(a, b Evidence) int { return strings.Compare(a.Key, b.Key) })

	return Record{fields: fields, received: time.Now()}
}

// Len returns the number of evidence fields.
func (r Record) Len() int { return len(r.fields) }

// Received is the time the record was created.
func (r Record) Received() time.Time { return r.received }

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	i, found := slices.BinarySearchFunc(r.fields, key, func(e Evidence, k string) int {
		return strings.Compare(e.Key, k)
	})
	if !found {
		return "", false
	}
	return r.fields[i].Value, true
}

// Fields returns a copy of the evidence in key order.
func (r Record) Fields() []Evidence {
	return slices.Clone(r.fields)
}

// Keys returns the evidence keys in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, e := range r.fields {
		keys[i] = e.Key
	}
	return keys
}

// Map returns a fresh map with the record's evidence.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.fields))
	for _, e := range r.fields {
		m[e.Key] = e.Value
	}
	return m
}

// filter returns a new record holding only the evidence keep accepts.
func (r Record) filter(keep func(Evidence) bool) Record {
	out := Record{fields: make([]Evidence, 0, len(r.fields)), received: r.received}
	for _, e := range r.fields {
		if keep(e) {
			out.fields = append(out.fields, e)
		}
	}
	return out
}

// with returns a new record with key set to value.
func (r Record) with(key, value string) Record {
	i, found := slices.BinarySearchFunc(r.fields, key, func(e Evidence, k string) int {
		return strings.Compare(e.Key, k)
	})
	fields := slices.Clone(r.fields)
	if found {
		fields[i].Value = value
	} else {
		fields = slices.Insert(fields, i, Evidence{Key: key, Value: value})
	}
	return Record{fields: fields, received: r.received}
}

// Batch is a group of records sent together, in submission order.
type Batch []Record

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b) }
