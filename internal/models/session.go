package models

import "sort"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStandard Role = "standard"
)

// DeviceSet is the set of device ids a session is authorized to observe.
// It is a read-only snapshot; assignment changes arrive as a whole new set.
type DeviceSet map[string]struct{}

func NewDeviceSet(ids ...string) DeviceSet {
	s := make(DeviceSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s DeviceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s DeviceSet) Len() int {
	return len(s)
}

// IDs returns the member ids in a stable order.
func (s DeviceSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Session describes one authenticated user as seen by the relay core.
// Role and Devices come from the external auth/assignment service.
type Session struct {
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	Devices     DeviceSet `json:"-"`
	PushGranted bool      `json:"pushGranted"`
}

func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
