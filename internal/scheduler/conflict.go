package scheduler

// Reservation is the view of a booking the conflict detector needs.
type Reservation struct {
	ID         int64
	RoomNumber string
	Accepted   bool
	Range      Range
}

// Conflict details an accepted reservation that blocks a candidate.
type Conflict struct {
	WithReservationID int64
	RoomNumber        string
	Range             Range
}

// DetectConflicts returns the accepted reservations in the candidate's room
// that overlap it. Pending reservations never conflict and the candidate never
// conflicts with itself.
func DetectConflicts(existing []Reservation, candidate Reservation) []Conflict {
	var conflicts []Conflict
	for _, other := range existing {
		if !other.Accepted {
			continue
		}
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if other.RoomNumber != candidate.RoomNumber {
			continue
		}
		if !other.Range.Overlaps(candidate.Range) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithReservationID: other.ID,
			RoomNumber:        other.RoomNumber,
			Range:             other.Range,
		})
	}
	return conflicts
}

// BlockedRooms returns the set of rooms holding at least one accepted
// reservation that overlaps the window.
func BlockedRooms(existing []Reservation, window Range) map[string]struct{} {
	blocked := make(map[string]struct{})
	for _, r := range existing {
		if r.Accepted && r.Range.Overlaps(window) {
			blocked[r.RoomNumber] = struct{}{}
		}
	}
	return blocked
}
