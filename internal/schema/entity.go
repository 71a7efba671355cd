// Package schema defines the entity types and state tree synchronized by
// the engine.
//
// Every synchronized entity carries a globally unique id and an updatedAt
// timestamp stamped on each mutation. Conflict resolution is whole-entity
// last-writer-wins: the copy with the greater updatedAt replaces the other
// in full, with no field-level merging. Entities that live in a shared
// resource additionally carry SharedMeta, which is server-authoritative
// and refreshed on merge regardless of content timestamps.
package schema

import (
	"fmt"
	"time"
)

// SharedMeta describes a resource shared from another account. It is
// populated by the server's shared listing and must never be invented
// locally.
type SharedMeta struct {
	IsShared   bool   `json:"isShared,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
	OwnerName  string `json:"ownerName,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// Entity is the contract every synchronized record satisfies. The merge
// layer operates exclusively through this interface so that the same
// code path serves arrays and id-keyed maps alike.
type Entity interface {
	// EntityID returns the globally unique id.
	EntityID() string

	// ModifiedAt returns the last-writer-wins timestamp.
	ModifiedAt() time.Time

	// Shared reports the sharing metadata, or a zero value for
	// entities that are not shareable.
	Shared() SharedMeta

	// RefreshSharedIdentity copies the server-authoritative identity
	// fields (sharing metadata plus name/color/icon) from an incoming
	// copy of the same entity type onto the receiver. Implementations
	// ignore entities of a different concrete type.
	RefreshSharedIdentity(from Entity)
}

// Priority levels accepted on tasks and subtasks.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Status is a workflow column definition attached to a space or list.
type Status struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Type  string `json:"type"` // todo, inprogress, done, closed
}

// Subtask is a child item embedded in a task.
type Subtask struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	DueDate   string    `json:"dueDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment is a discussion entry embedded in a task.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TimeEntry records tracked time against a task, in minutes.
type TimeEntry struct {
	ID          string `json:"id"`
	Duration    int    `json:"duration"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	UserID      string `json:"userId"`
}

// Relationship links a task to another task.
type Relationship struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // waiting, blocking, linked, custom
	TaskID string `json:"taskId"`
}

// Task is the primary work item.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	SpaceID     string `json:"spaceId"`
	ListID      string `json:"listId,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Tags          []string       `json:"tags,omitempty"`
	Subtasks      []Subtask      `json:"subtasks,omitempty"`
	Comments      []Comment      `json:"comments,omitempty"`
	TimeEntries   []TimeEntry    `json:"timeEntries,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	LinkedDocID   string         `json:"linkedDocId,omitempty"`

	SharedMeta
}

// Validate checks the task's required fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.SpaceID == "" {
		return fmt.Errorf("spaceId is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	return nil
}

func (t *Task) EntityID() string      { return t.ID }
func (t *Task) ModifiedAt() time.Time { return t.UpdatedAt }
func (t *Task) Shared() SharedMeta    { return t.SharedMeta }

func (t *Task) RefreshSharedIdentity(from Entity) {
	o, ok := from.(*Task)
	if !ok {
		return
	}
	t.SharedMeta = o.SharedMeta
	t.Name = o.Name
}

// Space is the top-level container for folders, lists and tasks.
type Space struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	IsDefault bool      `json:"isDefault,omitempty"`
	Statuses  []Status  `json:"statuses,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`

	SharedMeta
}

func (s *Space) EntityID() string      { return s.ID }
func (s *Space) ModifiedAt() time.Time { return s.UpdatedAt }
func (s *Space) Shared() SharedMeta    { return s.SharedMeta }

func (s *Space) RefreshSharedIdentity(from Entity) {
	o, ok := from.(*Space)
	if !ok {
		return
	}
	s.SharedMeta = o.SharedMeta
	s.Name = o.Name
	s.Color = o.Color
	s.Icon = o.Icon
}

// Folder groups lists inside a space.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SpaceID   string    `json:"spaceId"`
	UpdatedAt time.Time `json:"updatedAt"`

	SharedMeta
}

func (f *Folder) EntityID() string      { return f.ID }
func (f *Folder) ModifiedAt() time.Time { return f.UpdatedAt }
func (f *Folder) Shared() SharedMeta    { return f.SharedMeta }

func (f *Folder) RefreshSharedIdentity(from Entity) {
	o, ok := from.(*Folder)
	if !ok {
		return
	}
	f.SharedMeta = o.SharedMeta
	f.Name = o.Name
}

// List holds tasks, optionally nested under a folder.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SpaceID   string    `json:"spaceId"`
	FolderID  string    `json:"folderId,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	Statuses  []Status  `json:"statuses,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`

	SharedMeta
}

func (l *List) EntityID() string      { return l.ID }
func (l *List) ModifiedAt() time.Time { return l.UpdatedAt }
func (l *List) Shared() SharedMeta    { return l.SharedMeta }

func (l *List) RefreshSharedIdentity(from Entity) {
	o, ok := from.(*List)
	if !ok {
		return
	}
	l.SharedMeta = o.SharedMeta
	l.Name = o.Name
	l.Color = o.Color
	l.Icon = o.Icon
}

// Doc is a standalone document, optionally attached to a space.
type Doc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	SpaceID   string    `json:"spaceId,omitempty"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UpdatedAt time.Time `json:"updatedAt"`

	SharedMeta
}

func (d *Doc) EntityID() string      { return d.ID }
func (d *Doc) ModifiedAt() time.Time { return d.UpdatedAt }
func (d *Doc) Shared() SharedMeta    { return d.SharedMeta }

func (d *Doc) RefreshSharedIdentity(from Entity) {
	o, ok := from.(*Doc)
	if !ok {
		return
	}
	d.SharedMeta = o.SharedMeta
	d.Name = o.Name
}

// Tag is a label applied to tasks. Tags are device-owned and merged only
// as part of the whole envelope, never through the shared listing.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Invitation is a pending offer to join a shared resource.
type Invitation struct {
	ID           string    `json:"id"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	OwnerID      string    `json:"ownerId"`
	OwnerName    string    `json:"ownerName,omitempty"`
	InvitedEmail string    `json:"invitedEmail,omitempty"`
	Permission   string    `json:"permission"`
	Status       string    `json:"status"` // pending, accepted, declined
	CreatedAt    time.Time `json:"createdAt"`
}

// Notification kinds produced by the server for due-date tracking.
// At most one active instance of each kind exists per task.
const (
	NotificationOverdue = "overdue"
	NotificationDueSoon = "due_soon"
)

// Notification is a server-generated or collaborator-generated alert.
// The Read flag is owned by this device and never regressed by a fetch.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	TaskID    string    `json:"taskId,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
