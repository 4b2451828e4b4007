package reports

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// MaxSerialAttempts bounds serial allocation. There is no sequential fallback.
const MaxSerialAttempts = 5

const serialSpace = 1_000_000

var serialPattern = regexp.MustCompile(`^DHQ-\d{4}-\d{6}$`)

// SerialGenerator draws human-facing report references of the form
// DHQ-<year>-<6 digits>. Uniqueness is checked by the caller.
type SerialGenerator struct {
	clock func() time.Time
	draw  func(n int) int
}

func NewSerialGenerator() *SerialGenerator {
	return &SerialGenerator{clock: time.Now, draw: rand.IntN}
}

func (g *SerialGenerator) Generate() string {
	return fmt.Sprintf("DHQ-%04d-%06d", g.clock().UTC().Year(), g.draw(serialSpace))
}

// ValidSerial reports whether s has the persisted serial format.
func ValidSerial(s string) bool { return serialPattern.MatchString(s) }
