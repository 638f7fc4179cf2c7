package record

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrEmptyStore is returned when a store would hold no records.
var ErrEmptyStore = errors.New("record: store must contain at least one record")

// Record is a single servable fortune. Work and Character are optional and
// empty when absent.
type Record struct {
	Text        string `json:"text"`
	Attribution string `json:"attribution"`
	Work        string `json:"work,omitempty"`
	Character   string `json:"character,omitempty"`
}

// HasWork reports whether the source work is present.
func (r Record) HasWork() bool { return r.Work != "" }

// HasCharacter reports whether the sub-attribution is present.
func (r Record) HasCharacter() bool { return r.Character != "" }

// String renders the record as a quoted fortune followed by an indented
// attribution line, e.g. "Text"\n\t-Author, Work (Character).
func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(r.Text)
	b.WriteString("\"\n\t-")
	b.WriteString(r.Attribution)
	if r.HasWork() {
		b.WriteString(", ")
		b.WriteString(r.Work)
	}
	if r.HasCharacter() {
		b.WriteString(" (")
		b.WriteString(r.Character)
		b.WriteByte(')')
	}
	return b.String()
}

// Fingerprint returns a hex BLAKE3 digest over the length-prefixed fields.
func (r Record) Fingerprint() string {
	h := blake3.New()
	_, _ = h.Write([]byte("fortune-record"))
	var size [8]byte
	for _, field := range []string{r.Text, r.Attribution, r.Work, r.Character} {
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		_, _ = h.Write(size[:])
		_, _ = h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Store is an immutable, ordered, non-empty sequence of records. It is safe
// for concurrent readers without synchronization.
type Store struct {
	records []Record
}

// NewStore copies records into a new store.
func NewStore(records []Record) (*Store, error) {
	if len(records) == 0 {
		return nil, ErrEmptyStore
	}
	owned := make([]Record, len(records))
	copy(owned, records)
	return &Store{records: owned}, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// At returns a copy of the record at index i. It panics when i is out of range.
func (s *Store) At(i int) Record {
	return s.records[i]
}

// All returns a copy of every record in order.
func (s *Store) All() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
