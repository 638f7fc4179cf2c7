// Package rotation implements the time-sliced fortune selector.
//
// Wall-clock time since the selector's epoch is divided into fixed buckets
// numbered 0, 1, 2, and so on. Every call made inside one bucket observes the
// same record. The first call that lands in a newer bucket draws a fresh,
// uniformly random index; the check, the draw and the read happen under a
// single mutex so concurrent callers can never observe an index paired with
// the wrong bucket or perform two draws for one transition.
package rotation
