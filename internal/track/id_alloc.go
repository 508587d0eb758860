package track

import "fmt"

// idAllocator issues session-unique identities. The counter only ever
// moves forward, so an identity retired by pruning is never handed to a
// different subject later in the same session; it survives store clears
// and resets only with the session itself.
type idAllocator struct {
	next int64
}

func (a *idAllocator) allocate() string {
	a.next++
	return fmt.Sprintf("player_%d", a.next)
}

// reserve advances the counter past an externally supplied identity so a
// selection of "player_7" on a fresh session cannot collide with a later
// allocation. Identities in other formats need no reservation.
func (a *idAllocator) reserve(id string) {
	var n int64
	if _, err := fmt.Sscanf(id, "player_%d", &n); err == nil && n > a.next {
		a.next = n
	}
}
