package engine

import (
	"context"
	"encoding/json"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/merge"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/realtime"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// The engine is the realtime channel's handler: inbound events are
// applied idempotently and persisted like any other mutation, but are
// never re-broadcast.

// HandleInvitation merges an invitation pushed over the live channel.
func (e *Engine) HandleInvitation(inv schema.Invitation) {
	if err := e.ApplyInvitations(context.Background(), []schema.Invitation{inv}); err != nil {
		e.config.Logger.Printf("Failed to apply invitation %s: %v", inv.ID, err)
	}
}

// HandleNotification merges a notification pushed over the live channel.
func (e *Engine) HandleNotification(n schema.Notification) {
	if err := e.ApplyNotifications(context.Background(), []schema.Notification{n}); err != nil {
		e.config.Logger.Printf("Failed to apply notification %s: %v", n.ID, err)
	}
}

// HandleSharedUpdate applies a live change made by a collaborator.
// Task and list payloads upsert by id with no timestamp check: live
// events are assumed newer than anything known locally. A kick removes
// the named resource and everything under it.
func (e *Engine) HandleSharedUpdate(u realtime.SharedUpdate) {
	ctx := context.Background()

	switch u.Type {
	case realtime.UpdateTask:
		var t schema.Task
		if err := json.Unmarshal(u.Data, &t); err != nil || t.ID == "" {
			e.config.Logger.Printf("Dropping malformed shared task update: %v", err)
			return
		}
		_ = e.mutate(ctx, func(s *schema.State) {
			s.Tasks[t.ID] = &t
		})

	case realtime.UpdateTaskDelete:
		id := tombstoneID(u)
		if id == "" {
			return
		}
		_ = e.mutate(ctx, func(s *schema.State) {
			delete(s.Tasks, id)
		})

	case realtime.UpdateList:
		var l schema.List
		if err := json.Unmarshal(u.Data, &l); err != nil || l.ID == "" {
			e.config.Logger.Printf("Dropping malformed shared list update: %v", err)
			return
		}
		_ = e.mutate(ctx, func(s *schema.State) {
			for i, have := range s.Lists {
				if have.ID == l.ID {
					s.Lists[i] = &l
					return
				}
			}
			s.Lists = append(s.Lists, &l)
		})

	case realtime.UpdateListDelete:
		id := tombstoneID(u)
		if id == "" {
			return
		}
		_ = e.mutate(ctx, func(s *schema.State) {
			out := s.Lists[:0]
			for _, l := range s.Lists {
				if l.ID != id {
					out = append(out, l)
				}
			}
			s.Lists = out
		})

	case realtime.UpdateKick:
		id := tombstoneID(u)
		if id == "" {
			return
		}
		e.config.Logger.Printf("Kicked from resource %s", id)
		_ = e.mutate(ctx, func(s *schema.State) {
			removeResourceCascade(s, id)
		})

	default:
		e.config.Logger.Printf("Ignoring shared update of type %q", u.Type)
	}
}

// tombstoneID extracts the target id of a delete or kick event.
func tombstoneID(u realtime.SharedUpdate) string {
	if u.ResourceID != "" {
		return u.ResourceID
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(u.Data, &payload); err != nil {
		return ""
	}
	return payload.ID
}

// removeResourceCascade removes the entity with the given id from every
// collection, plus every entity whose parent resource matches it.
// Caller holds the engine lock (or owns the state).
func removeResourceCascade(s *schema.State, id string) {
	spaces := s.Spaces[:0]
	for _, sp := range s.Spaces {
		if sp.ID != id {
			spaces = append(spaces, sp)
		}
	}
	s.Spaces = spaces

	folders := s.Folders[:0]
	for _, f := range s.Folders {
		if f.ID != id && f.SpaceID != id {
			folders = append(folders, f)
		}
	}
	s.Folders = folders

	lists := s.Lists[:0]
	for _, l := range s.Lists {
		if l.ID != id && l.SpaceID != id && l.FolderID != id {
			lists = append(lists, l)
		}
	}
	s.Lists = lists

	for tid, t := range s.Tasks {
		if tid == id || t.SpaceID == id || t.ListID == id {
			delete(s.Tasks, tid)
		}
	}

	docs := s.Docs[:0]
	for _, d := range s.Docs {
		if d.ID != id && d.SpaceID != id {
			docs = append(docs, d)
		}
	}
	s.Docs = docs
}

// ApplySharedListing prunes revoked shared resources and merges the
// fresh listing into local state. Used by the reconciliation engine.
func (e *Engine) ApplySharedListing(ctx context.Context, listing merge.Listing) error {
	return e.mutate(ctx, func(s *schema.State) {
		merge.PruneState(s, listing)
		for _, col := range schema.Collections {
			fetched := listing[col.Name]
			if len(fetched) == 0 {
				continue
			}
			col.Set(s, merge.Entities(col.Get(s), fetched))
		}
	})
}

// ApplyInvitations merges fetched invitations by id. A locally known
// invitation keeps its status; unseen ones are appended.
func (e *Engine) ApplyInvitations(ctx context.Context, fetched []schema.Invitation) error {
	if len(fetched) == 0 {
		return nil
	}
	return e.mutate(ctx, func(s *schema.State) {
		index := make(map[string]int, len(s.Invitations))
		for i, inv := range s.Invitations {
			index[inv.ID] = i
		}
		for _, in := range fetched {
			if i, ok := index[in.ID]; ok {
				status := s.Invitations[i].Status
				s.Invitations[i] = in
				if status != "" && status != "pending" {
					s.Invitations[i].Status = status
				}
				continue
			}
			index[in.ID] = len(s.Invitations)
			s.Invitations = append(s.Invitations, in)
		}
	})
}

// ApplyNotifications merges fetched notifications by id. A fetched item
// never regresses a notification from read back to unread, and system
// notifications ("overdue", "due_soon") collapse to at most one
// instance per task per kind, keeping the newest.
func (e *Engine) ApplyNotifications(ctx context.Context, fetched []schema.Notification) error {
	if len(fetched) == 0 {
		return nil
	}
	return e.mutate(ctx, func(s *schema.State) {
		s.Notifications = mergeNotifications(s.Notifications, fetched)
	})
}

// MarkNotificationRead flags a notification read. Read flags are owned
// by this device.
func (e *Engine) MarkNotificationRead(ctx context.Context, id string) error {
	return e.mutate(ctx, func(s *schema.State) {
		for i := range s.Notifications {
			if s.Notifications[i].ID == id {
				s.Notifications[i].Read = true
				return
			}
		}
	})
}

func isSystemKind(kind string) bool {
	return kind == schema.NotificationOverdue || kind == schema.NotificationDueSoon
}

func mergeNotifications(existing, fetched []schema.Notification) []schema.Notification {
	merged := make([]schema.Notification, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, n := range merged {
		index[n.ID] = i
	}

	for _, in := range fetched {
		if i, ok := index[in.ID]; ok {
			read := merged[i].Read
			merged[i] = in
			merged[i].Read = merged[i].Read || read
			continue
		}
		index[in.ID] = len(merged)
		merged = append(merged, in)
	}

	// Collapse system notifications to one per task per kind. The
	// newest instance survives; a read flag on any duplicate sticks.
	type key struct{ kind, taskID string }
	keep := make(map[key]int)
	out := merged[:0]
	for _, n := range merged {
		if !isSystemKind(n.Kind) || n.TaskID == "" {
			out = append(out, n)
			continue
		}
		k := key{n.Kind, n.TaskID}
		if i, ok := keep[k]; ok {
			if n.CreatedAt.After(out[i].CreatedAt) {
				read := out[i].Read
				out[i] = n
				out[i].Read = out[i].Read || read
			} else {
				out[i].Read = out[i].Read || n.Read
			}
			continue
		}
		keep[k] = len(out)
		out = append(out, n)
	}
	return out
}
