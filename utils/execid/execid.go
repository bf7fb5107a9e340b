package execid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// New returns a fresh execution id. Execution ids are plain UUIDs because
// they travel through the trigger payload, the blob path namespace and the
// status API as the correlation key.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether the string is a well formed execution id.
func IsValid(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}

// NewBatch returns a batch_* ULID string used to group bulk submissions.
func NewBatch() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	return "batch_" + strings.ToLower(id.String())
}
