package domain

// RoomList is the static allow-list of rooms known at startup.
// Rooms are not stored entities, just a validation domain and a grouping
// key for registry lookups. There is no dynamic room creation.
type RoomList []string

func DefaultRooms() RoomList {
	return RoomList{"General", "Video Games", "Movies", "Nerd Shit"}
}

func (r RoomList) Contains(name string) bool {
	for _, room := range r {
		if room == name {
			return true
		}
	}
	return false
}
