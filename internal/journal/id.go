package journal

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

// newEntropy returns a monotonic reader, so IDs minted in the same
// millisecond still sort in append order.
func newEntropy() io.Reader {
	return ulid.Monotonic(rand.Reader, 0)
}

// newID mints a record ID. Callers hold j.mu.
func (j *Journal) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), j.entropy).String()
}

// IDTime returns the time encoded in a record ID.
func IDTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
