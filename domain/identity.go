package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ResolveIdentity reuses an authenticated account name when one exists for
// the session, otherwise it synthesizes a guest name.
func ResolveIdentity(authenticated string) string {
	if authenticated != "" {
		return authenticated
	}
	return GuestIdentity(time.Now())
}

// GuestIdentity builds a transient display name of the form
// Guest<HHMM><4-digit random>. Uniqueness against the live registry is
// probabilistic only; no collision check is performed.
func GuestIdentity(now time.Time) string {
	return fmt.Sprintf("Guest%s%d", now.Format("1504"), 1000+rand.IntN(9000))
}
