package davclient

import (
	"fmt"
	"regexp"
)

var uidPattern = regexp.MustCompile(`^[A-Za-z0-9._@:+-]{1,255}$`)

// ValidateUID rejects UIDs that cannot safely become an object path segment.
func ValidateUID(uid string) error {
	if !uidPattern.MatchString(uid) {
		return fmt.Errorf("%w: invalid UID %q", ErrInvalidArgument, uid)
	}
	return nil
}
