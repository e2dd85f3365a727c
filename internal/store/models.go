package store

import "time"

type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type InboxItem struct {
	ID        int64
	ProjectID string
	Text      string
	CreatedAt time.Time
}

// Snapshot is one immutable version of a project's mind-map. Content holds
// the serialized tree document; the highest ID per project is the current
// version.
type Snapshot struct {
	ID        int64
	ProjectID string
	Content   string
	CreatedAt time.Time
}
