package optimistic

import "strconv"

// ID identifies an entry either by a locally generated temporary id (while
// the create is in flight) or by the server-assigned id. The two spaces
// never compare equal.
type ID struct {
	value   int64
	pending bool
}

func Pending(tmp int64) ID {
	return ID{value: tmp, pending: true}
}

func Confirmed(serverID int64) ID {
	return ID{value: serverID}
}

func (i ID) IsPending() bool {
	return i.pending
}

// Server returns the server id; ok is false for pending ids.
func (i ID) Server() (int64, bool) {
	if i.pending {
		return 0, false
	}
	return i.value, true
}

func (i ID) String() string {
	if i.pending {
		return "pending:" + strconv.FormatInt(i.value, 10)
	}
	return strconv.FormatInt(i.value, 10)
}
