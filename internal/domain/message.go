package domain

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// Message is a single transcript entry. Content is the raw text as typed or
// received; formatting happens at render time. Time is a short localized
// clock string, not a parseable timestamp.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// DefaultTimeLayout renders hours and minutes, the short form a chat bubble shows.
const DefaultTimeLayout = "15:04"

// Clock stamps messages with a short local time.
type Clock struct {
	Now    func() time.Time
	Layout string
}

// Stamp formats the current time with the clock's layout.
func (c Clock) Stamp() string {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	layout := c.Layout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return now().Format(layout)
}

// Message builds a transcript entry stamped with the current time.
func (c Clock) Message(role Role, content string) Message {
	return Message{Role: role, Content: content, Time: c.Stamp()}
}
