package sandbox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/roseram/previewd/internal/types"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// namePattern is the shape every generated sandbox name must match.
var namePattern = regexp.MustCompile(`^p-[a-z0-9]{6}-\d{5}$`)

// GenerateName produces a sandbox name of the form
// p-{6 random base36 chars}-{last 5 digits of epoch ms}: short enough to
// stay far under MaxNameLength, random enough to avoid collisions, with
// the timestamp suffix as a tiebreaker for same-instant creates.
func GenerateName() string {
	token := make([]byte, 6)
	for i := range token {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(nameAlphabet))))
		if err != nil {
			// crypto/rand failing means the platform entropy source is
			// broken; fall back to the timestamp so we still produce a
			// well-formed name.
			token[i] = nameAlphabet[time.Now().UnixNano()%int64(len(nameAlphabet))]
			continue
		}
		token[i] = nameAlphabet[n.Int64()]
	}

	suffix := time.Now().UnixMilli() % 100000
	return fmt.Sprintf("p-%s-%05d", token, suffix)
}

// ValidateName enforces the length invariant and the generated shape.
// The fixed format cannot realistically exceed MaxNameLength, but the
// check is kept as a defensive invariant.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return &types.ValidationError{
			Field:  "sandboxName",
			Reason: fmt.Sprintf("%d characters exceeds the %d-character limit", len(name), MaxNameLength),
		}
	}
	if !namePattern.MatchString(name) {
		return &types.ValidationError{
			Field:  "sandboxName",
			Reason: fmt.Sprintf("%q does not match p-[a-z0-9]{6}-\\d{5}", name),
		}
	}
	return nil
}

// PreviewURL derives the public URL for a sandbox name.
func PreviewURL(name string) string {
	return fmt.Sprintf("https://%s.%s", name, ProviderDomain)
}
