package shareusage

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Tracker suppresses evidence that was already shared recently.
// Track reports true when the key has not been seen within the tracker's interval,
// and marks it as seen.
type Tracker interface {
	Track(ctx context.Context, key string) (bool, error)
}

// Fingerprint derives the tracking key for a record: client IP plus every evidence pair.
// Records with identical evidence from the same client share a fingerprint.
func Fingerprint(r Record) string {
	d := xxhash.New()
	ip, _ := r.Get(KeyClientIP)
	_, _ = d.WriteString(ip)
	for _, e := range r.fields {
		if e.Key == KeyClientIP {
			continue
		}
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(e.Key)
		_, _ = d.WriteString("\x01")
		_, _ = d.WriteString(e.Value)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
