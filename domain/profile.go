package domain

// UserProfile holds per-user preferences and the calendar refresh
// credential. An empty RefreshToken means the user is not connected to
// the external calendar; its presence is the sole source of truth for
// connected state.
type UserProfile struct {
	ID                   string `json:"id"`
	Email                string `json:"email,omitempty"`
	RefreshToken         string `json:"-"`
	Theme                string `json:"theme,omitempty"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// Connected reports whether a calendar refresh credential is stored.
func (p UserProfile) Connected() bool {
	return p.RefreshToken != ""
}
