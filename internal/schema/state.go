package schema

import (
	"encoding/json"
	"time"
)

// ActiveTimer marks a running time tracker. Device-local.
type ActiveTimer struct {
	TaskID    string    `json:"taskId"`
	StartTime time.Time `json:"startTime"`
}

// ColumnSetting configures one visible column of a list view. Device-local.
type ColumnSetting struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Width   int    `json:"width,omitempty"`
}

// SavedView is a pinned view configuration. Device-local.
type SavedView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ViewType  string    `json:"viewType"`
	SpaceID   string    `json:"spaceId,omitempty"`
	ListID    string    `json:"listId,omitempty"`
	IsPinned  bool      `json:"isPinned"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is the whole synchronized application tree. Tasks are id-keyed;
// the remaining entity collections are arrays. Both shapes flow through
// the same registry-driven merge.
//
// Fields past the entity collections are device-local: they persist to
// the local stores but are stripped before any server upload so that
// per-device preferences never leak across devices.
type State struct {
	Tasks   map[string]*Task `json:"tasks"`
	Spaces  []*Space         `json:"spaces"`
	Folders []*Folder        `json:"folders"`
	Lists   []*List          `json:"lists"`
	Docs    []*Doc           `json:"docs"`
	Tags    []*Tag           `json:"tags,omitempty"`

	Invitations   []Invitation   `json:"invitations,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`

	// Device-local fields below. Keep deviceLocalFields in sync.
	CurrentSpaceID   string                     `json:"currentSpaceId,omitempty"`
	CurrentListID    string                     `json:"currentListId,omitempty"`
	CurrentView      string                     `json:"currentView,omitempty"`
	SavedViews       []SavedView                `json:"savedViews,omitempty"`
	ColumnSettings   map[string][]ColumnSetting `json:"columnSettings,omitempty"`
	Theme            string                     `json:"theme,omitempty"`
	AccentColor      string                     `json:"accentColor,omitempty"`
	ActiveTimer      *ActiveTimer               `json:"activeTimer,omitempty"`
	SidebarCollapsed bool                       `json:"sidebarCollapsed,omitempty"`
}

// deviceLocalFields are the JSON keys stripped from uploads.
var deviceLocalFields = []string{
	"currentSpaceId",
	"currentListId",
	"currentView",
	"savedViews",
	"columnSettings",
	"theme",
	"accentColor",
	"activeTimer",
	"sidebarCollapsed",
}

// DeviceLocalFields returns the JSON keys of per-device preference
// fields that must never be uploaded to the server.
func DeviceLocalFields() []string {
	out := make([]string, len(deviceLocalFields))
	copy(out, deviceLocalFields)
	return out
}

// StripDeviceLocal returns a deep copy of the envelope with every
// device-local field cleared, suitable for uploading to the server.
func (e *Envelope) StripDeviceLocal() (*Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var doc struct {
		State   map[string]json.RawMessage `json:"state"`
		Version int                        `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for _, field := range deviceLocalFields {
		delete(doc.State, field)
	}
	cleaned, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Envelope
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Envelope is the versioned wrapper exchanged with the local stores and
// the server. One envelope exists per logical key and is versioned
// independently of every other key.
type Envelope struct {
	State   *State `json:"state"`
	Version int    `json:"version"`
}

// DecodeEnvelope parses an envelope from JSON. Some historical server
// copies were double-encoded (a JSON string containing JSON); a failed
// first parse is retried through an inner string before giving up.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.State != nil {
		return &env, nil
	}

	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, err
	}
	env = Envelope{}
	if err := json.Unmarshal([]byte(inner), &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DefaultStatuses returned for spaces and lists that have none.
func DefaultStatuses() []Status {
	return []Status{
		{ID: "todo", Name: "TO DO", Color: "#3b82f6", Type: "todo"},
		{ID: "inprogress", Name: "IN PROGRESS", Color: "#f59e0b", Type: "inprogress"},
		{ID: "completed", Name: "COMPLETED", Color: "#10b981", Type: "done"},
	}
}

// NewState returns an empty state with all collections initialized.
func NewState() *State {
	return &State{
		Tasks:          make(map[string]*Task),
		ColumnSettings: make(map[string][]ColumnSetting),
	}
}

// DefaultState seeds a first-run state tree with the built-in spaces.
func DefaultState(now time.Time) *State {
	s := NewState()
	s.Spaces = []*Space{
		{ID: "everything", Name: "Everything", Icon: "star", Color: "#3b82f6", IsDefault: true, Statuses: DefaultStatuses(), UpdatedAt: now},
		{ID: "team-space", Name: "Team Space", Icon: "users", Color: "#10b981", IsDefault: true, Statuses: DefaultStatuses(), UpdatedAt: now},
	}
	s.CurrentSpaceID = "team-space"
	s.CurrentView = "home"
	s.Theme = "system"
	return s
}

// Clone deep-copies the state via JSON round-trip. Used to hand a
// consistent snapshot to background persistence without holding the
// engine lock.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return NewState()
	}
	out := NewState()
	if err := json.Unmarshal(data, out); err != nil {
		return NewState()
	}
	return out
}
