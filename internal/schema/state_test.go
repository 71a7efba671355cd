package schema

import (
	"encoding/json"
	"testing"
	"time"
)

// TestDecodeEnvelope_Plain tests decoding a normal envelope
func TestDecodeEnvelope_Plain(t *testing.T) {
	data := []byte(`{"state":{"tasks":{},"spaces":[{"id":"s1","name":"Work","updatedAt":"2026-01-01T00:00:00Z"}]},"version":3}`)

	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() failed: %v", err)
	}
	if env.Version != 3 {
		t.Errorf("Version = %d, want 3", env.Version)
	}
	if len(env.State.Spaces) != 1 || env.State.Spaces[0].ID != "s1" {
		t.Errorf("Spaces = %+v, want one space s1", env.State.Spaces)
	}
}

// TestDecodeEnvelope_DoubleEncoded tests healing a JSON-string-wrapped envelope
func TestDecodeEnvelope_DoubleEncoded(t *testing.T) {
	inner := `{"state":{"tasks":{"t1":{"id":"t1","name":"A","status":"TO DO","priority":"low","spaceId":"s1","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}},"spaces":[]},"version":7}`
	wrapped, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("Failed to wrap envelope: %v", err)
	}

	env, err := DecodeEnvelope(wrapped)
	if err != nil {
		t.Fatalf("DecodeEnvelope() failed on double-encoded input: %v", err)
	}
	if env.Version != 7 {
		t.Errorf("Version = %d, want 7", env.Version)
	}
	if _, ok := env.State.Tasks["t1"]; !ok {
		t.Error("Task t1 missing after double-encode heal")
	}
}

// TestDecodeEnvelope_Garbage tests that unparseable input fails
func TestDecodeEnvelope_Garbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`not json at all`)); err == nil {
		t.Error("DecodeEnvelope() accepted garbage input")
	}
}

// TestStripDeviceLocal tests removal of per-device preference fields
func TestStripDeviceLocal(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState()
	s.Tasks["t1"] = &Task{ID: "t1", Name: "Keep me", SpaceID: "s1", Status: "TO DO", Priority: "low", UpdatedAt: now}
	s.CurrentSpaceID = "s1"
	s.CurrentView = "board"
	s.Theme = "dark"
	s.AccentColor = "#ff0000"
	s.SidebarCollapsed = true
	s.ActiveTimer = &ActiveTimer{TaskID: "t1", StartTime: now}
	s.SavedViews = []SavedView{{ID: "v1", Name: "Mine", ViewType: "list", CreatedAt: now}}

	env := &Envelope{State: s, Version: 2}
	cleaned, err := env.StripDeviceLocal()
	if err != nil {
		t.Fatalf("StripDeviceLocal() failed: %v", err)
	}

	if cleaned.Version != 2 {
		t.Errorf("Version = %d, want 2", cleaned.Version)
	}
	if _, ok := cleaned.State.Tasks["t1"]; !ok {
		t.Error("Task t1 dropped by stripping")
	}
	if cleaned.State.CurrentSpaceID != "" || cleaned.State.CurrentView != "" || cleaned.State.Theme != "" {
		t.Errorf("Device-local scalars survived: %q %q %q",
			cleaned.State.CurrentSpaceID, cleaned.State.CurrentView, cleaned.State.Theme)
	}
	if cleaned.State.ActiveTimer != nil {
		t.Error("ActiveTimer survived stripping")
	}
	if len(cleaned.State.SavedViews) != 0 {
		t.Error("SavedViews survived stripping")
	}

	// The original envelope is untouched.
	if env.State.CurrentSpaceID != "s1" || env.State.ActiveTimer == nil {
		t.Error("StripDeviceLocal() mutated its receiver")
	}
}

// TestDefaultState tests the first-run seed tree
func TestDefaultState(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := DefaultState(now)

	if len(s.Spaces) != 2 {
		t.Fatalf("len(Spaces) = %d, want 2", len(s.Spaces))
	}
	if s.Spaces[0].ID != "everything" || s.Spaces[1].ID != "team-space" {
		t.Errorf("Seed space ids = %q, %q", s.Spaces[0].ID, s.Spaces[1].ID)
	}
	for _, sp := range s.Spaces {
		if !sp.IsDefault {
			t.Errorf("Seed space %s not marked default", sp.ID)
		}
		if len(sp.Statuses) != 3 {
			t.Errorf("Seed space %s has %d statuses, want 3", sp.ID, len(sp.Statuses))
		}
	}
	if s.CurrentSpaceID != "team-space" {
		t.Errorf("CurrentSpaceID = %q, want team-space", s.CurrentSpaceID)
	}
	if s.Tasks == nil {
		t.Error("Tasks map not initialized")
	}
}

// TestState_Clone tests deep-copy independence
func TestState_Clone(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState()
	s.Tasks["t1"] = &Task{ID: "t1", Name: "Original", SpaceID: "s1", Status: "TO DO", Priority: "low", UpdatedAt: now}
	s.Lists = []*List{{ID: "l1", Name: "Inbox", SpaceID: "s1", UpdatedAt: now}}

	clone := s.Clone()
	clone.Tasks["t1"].Name = "Changed"
	clone.Lists[0].Name = "Renamed"

	if s.Tasks["t1"].Name != "Original" {
		t.Error("Clone shares task memory with the source")
	}
	if s.Lists[0].Name != "Inbox" {
		t.Error("Clone shares list memory with the source")
	}
}

// TestCollectionByName tests registry lookups
func TestCollectionByName(t *testing.T) {
	col := CollectionByName("tasks")
	if col == nil {
		t.Fatal("CollectionByName(tasks) returned nil")
	}
	if col.Shape != ShapeMap {
		t.Errorf("tasks shape = %v, want ShapeMap", col.Shape)
	}

	if CollectionByName("spaces").Shape != ShapeArray {
		t.Error("spaces shape is not ShapeArray")
	}
	if CollectionByName("nonexistent") != nil {
		t.Error("CollectionByName(nonexistent) returned a collection")
	}
}

// TestCollection_RoundTrip tests Get/Set symmetry for both shapes
func TestCollection_RoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewState()
	s.Tasks["t1"] = &Task{ID: "t1", Name: "A", SpaceID: "s1", Status: "TO DO", Priority: "low", UpdatedAt: now}
	s.Spaces = []*Space{
		{ID: "s1", Name: "First", UpdatedAt: now},
		{ID: "s2", Name: "Second", UpdatedAt: now},
	}

	tasks := CollectionByName("tasks")
	items := tasks.Get(s)
	if len(items) != 1 || items[0].EntityID() != "t1" {
		t.Fatalf("tasks.Get() = %d items", len(items))
	}
	tasks.Set(s, items)
	if s.Tasks["t1"].Name != "A" {
		t.Error("tasks round trip lost the entry")
	}

	spaces := CollectionByName("spaces")
	got := spaces.Get(s)
	if len(got) != 2 || got[0].EntityID() != "s1" || got[1].EntityID() != "s2" {
		t.Fatalf("spaces.Get() lost ordering: %d items", len(got))
	}
	spaces.Set(s, got)
	if s.Spaces[0].ID != "s1" || s.Spaces[1].ID != "s2" {
		t.Error("spaces round trip reordered entries")
	}
}

// TestTask_Validate tests required-field enforcement
func TestTask_Validate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	valid := &Task{ID: "t1", Name: "A", SpaceID: "s1", UpdatedAt: now}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on valid task failed: %v", err)
	}

	cases := []struct {
		name string
		task Task
	}{
		{"missing id", Task{Name: "A", SpaceID: "s1", UpdatedAt: now}},
		{"missing name", Task{ID: "t1", SpaceID: "s1", UpdatedAt: now}},
		{"missing space", Task{ID: "t1", Name: "A", UpdatedAt: now}},
		{"zero updatedAt", Task{ID: "t1", Name: "A", SpaceID: "s1"}},
	}
	for _, tc := range cases {
		if err := tc.task.Validate(); err == nil {
			t.Errorf("Validate() accepted task with %s", tc.name)
		}
	}
}

// TestRefreshSharedIdentity tests server-authoritative field refresh
func TestRefreshSharedIdentity(t *testing.T) {
	local := &Space{ID: "s1", Name: "Old", Color: "#000", Icon: "box"}
	incoming := &Space{
		ID: "s1", Name: "New", Color: "#fff", Icon: "star",
		SharedMeta: SharedMeta{IsShared: true, OwnerID: "u2", OwnerName: "Pat", Permission: "edit"},
	}

	local.RefreshSharedIdentity(incoming)
	if local.Name != "New" || local.Color != "#fff" || local.Icon != "star" {
		t.Errorf("Identity fields not refreshed: %+v", local)
	}
	if !local.IsShared || local.OwnerID != "u2" || local.Permission != "edit" {
		t.Errorf("Sharing metadata not refreshed: %+v", local.SharedMeta)
	}

	// Wrong concrete type is ignored.
	task := &Task{ID: "s1", Name: "Not a space"}
	before := local.Name
	local.RefreshSharedIdentity(task)
	if local.Name != before {
		t.Error("RefreshSharedIdentity applied a mismatched type")
	}
}
