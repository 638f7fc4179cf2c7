package rotation

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/example/fortune/pkg/fortune/record"
)

// ErrInvalidInterval indicates a non-positive bucket duration.
var ErrInvalidInterval = errors.New("rotation: interval must be positive")

// ErrNilStore indicates the selector was built without a store.
var ErrNilStore = errors.New("rotation: record store is nil")

// noBucket forces a reroll on the first call.
const noBucket int64 = -1

// Source draws integers in [0, n). It need not be cryptographically secure.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Reroll describes a new selection made for a bucket.
type Reroll struct {
	Bucket   int64
	Previous int64
	Index    int
}

// Lease is a record together with the bucket it was selected for.
type Lease struct {
	Record  record.Record
	Index   int
	Bucket  int64
	Expires time.Time
}

// State is a point-in-time view of the selector.
type State struct {
	Index      int
	LastBucket int64
	Rerolls    uint64
}

// Option customises a Selector.
type Option func(*Selector)

// WithClock overrides the time source. The default is time.Now, whose
// monotonic reading keeps elapsed time from going backward.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand overrides the randomness source.
func WithRand(src Source) Option {
	return func(s *Selector) {
		if src != nil {
			s.rng = src
		}
	}
}

// WithObserver registers a callback invoked after every reroll, outside the lock.
func WithObserver(fn func(Reroll)) Option {
	return func(s *Selector) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// Selector holds one record stable for every call inside a time bucket and
// draws a new one when the bucket advances.
type Selector struct {
	store     *record.Store
	interval  time.Duration
	epoch     time.Time
	now       func() time.Time
	observers []func(Reroll)

	mu         sync.Mutex
	rng        Source
	selected   int
	lastBucket int64
	rerolls    uint64
}

// New creates a selector over store whose buckets are interval long. The
// epoch is captured from the clock at construction.
func New(store *record.Store, interval time.Duration, opts ...Option) (*Selector, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if store.Len() == 0 {
		return nil, record.ErrEmptyStore
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	s := &Selector{
		store:      store,
		interval:   interval,
		now:        time.Now,
		rng:        globalSource{},
		lastBucket: noBucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epoch = s.now()
	return s, nil
}

// Current returns the record for the current bucket, rerolling first when the
// bucket has advanced since the last call.
func (s *Selector) Current() record.Record {
	return s.Lease().Record
}

// Lease is Current plus the bucket ordinal, the selected index and the instant
// the bucket ends.
func (s *Selector) Lease() Lease {
	s.mu.Lock()
	bucket := s.bucketAt(s.now())
	event, rerolled := s.advanceLocked(bucket)
	lease := Lease{
		Record:  s.store.At(s.selected),
		Index:   s.selected,
		Bucket:  s.lastBucket,
		Expires: s.epoch.Add(time.Duration(s.lastBucket+1) * s.interval),
	}
	s.mu.Unlock()

	if rerolled {
		s.notify(event)
	}
	return lease
}

// Snapshot reports the selector state without advancing it.
func (s *Selector) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Index:      s.selected,
		LastBucket: s.lastBucket,
		Rerolls:    s.rerolls,
	}
}

// Interval returns the bucket duration.
func (s *Selector) Interval() time.Duration { return s.interval }

// Epoch returns the bucket-numbering origin.
func (s *Selector) Epoch() time.Time { return s.epoch }

// Len returns the size of the underlying store.
func (s *Selector) Len() int { return s.store.Len() }

func (s *Selector) bucketAt(now time.Time) int64 {
	elapsed := now.Sub(s.epoch)
	if elapsed < 0 {
		elapsed = 0
	}
	return int64(elapsed / s.interval)
}

// advanceLocked rerolls when bucket is newer than lastBucket. An older bucket
// leaves the state untouched so lastBucket never rewinds.
func (s *Selector) advanceLocked(bucket int64) (Reroll, bool) {
	if bucket <= s.lastBucket {
		return Reroll{}, false
	}
	event := Reroll{Bucket: bucket, Previous: s.lastBucket}
	s.selected = s.rng.IntN(s.store.Len())
	s.lastBucket = bucket
	s.rerolls++
	event.Index = s.selected
	return event, true
}

func (s *Selector) notify(event Reroll) {
	for _, fn := range s.observers {
		fn(event)
	}
}
