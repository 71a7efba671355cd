package engine

import (
	"context"
	"fmt"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/realtime"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// AddSpace creates a space with the default status set.
func (e *Engine) AddSpace(ctx context.Context, name, icon, color string) (*schema.Space, error) {
	if name == "" {
		return nil, fmt.Errorf("space name is required")
	}
	sp := &schema.Space{
		ID:        e.config.NewID(),
		Name:      name,
		Icon:      icon,
		Color:     color,
		Statuses:  schema.DefaultStatuses(),
		UpdatedAt: e.config.Now(),
	}
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Spaces = append(s.Spaces, sp)
	})
	out := *sp
	return &out, nil
}

// UpdateSpace applies changes to a space and stamps its updatedAt.
func (e *Engine) UpdateSpace(ctx context.Context, id string, apply func(sp *schema.Space)) (*schema.Space, error) {
	var out schema.Space
	var found, shared bool
	var owner string

	_ = e.mutate(ctx, func(s *schema.State) {
		for _, sp := range s.Spaces {
			if sp.ID == id {
				found = true
				apply(sp)
				sp.UpdatedAt = e.config.Now()
				out = *sp
				owner, shared = e.ownerFor(sp.SharedMeta, "")
				return
			}
		}
	})
	if !found {
		return nil, fmt.Errorf("space %s: %w", id, ErrNotFound)
	}
	if shared {
		e.propagate(owner, "space", &out)
	}
	return &out, nil
}

// DeleteSpace removes a space and everything under it: folders, lists
// and tasks.
func (e *Engine) DeleteSpace(ctx context.Context, id string) error {
	var found bool
	_ = e.mutate(ctx, func(s *schema.State) {
		for _, sp := range s.Spaces {
			if sp.ID == id {
				found = true
				break
			}
		}
		if found {
			removeResourceCascade(s, id)
		}
	})
	if !found {
		return fmt.Errorf("space %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddFolder creates a folder inside a space.
func (e *Engine) AddFolder(ctx context.Context, name, spaceID string) (*schema.Folder, error) {
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}
	f := &schema.Folder{
		ID:        e.config.NewID(),
		Name:      name,
		SpaceID:   spaceID,
		UpdatedAt: e.config.Now(),
	}
	var owner string
	var shared bool
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Folders = append(s.Folders, f)
		owner, shared = e.ownerFor(f.SharedMeta, f.SpaceID)
	})
	out := *f
	e.broadcast("folder", out.SpaceID, &out)
	if shared {
		e.propagate(owner, "folder", &out)
	}
	return &out, nil
}

// UpdateFolder applies changes to a folder.
func (e *Engine) UpdateFolder(ctx context.Context, id string, apply func(f *schema.Folder)) (*schema.Folder, error) {
	var out schema.Folder
	var found, shared bool
	var owner string

	_ = e.mutate(ctx, func(s *schema.State) {
		for _, f := range s.Folders {
			if f.ID == id {
				found = true
				apply(f)
				f.UpdatedAt = e.config.Now()
				out = *f
				owner, shared = e.ownerFor(f.SharedMeta, f.SpaceID)
				return
			}
		}
	})
	if !found {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}

	e.broadcast("folder", out.SpaceID, &out)
	if shared {
		e.propagate(owner, "folder", &out)
	}
	return &out, nil
}

// DeleteFolder removes a folder. Its lists survive, detached to the
// root of their space.
func (e *Engine) DeleteFolder(ctx context.Context, id string) error {
	var found bool
	var spaceID string
	_ = e.mutate(ctx, func(s *schema.State) {
		out := s.Folders[:0]
		for _, f := range s.Folders {
			if f.ID == id {
				found = true
				spaceID = f.SpaceID
				continue
			}
			out = append(out, f)
		}
		s.Folders = out
		for _, l := range s.Lists {
			if l.FolderID == id {
				l.FolderID = ""
				l.UpdatedAt = e.config.Now()
			}
		}
	})
	if !found {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	e.broadcastDelete("folder", spaceID, id)
	return nil
}

// ListDraft carries the caller-supplied fields of a new list.
type ListDraft struct {
	Name     string
	SpaceID  string
	FolderID string
	Icon     string
	Color    string
}

// AddList creates a list with the default status set.
func (e *Engine) AddList(ctx context.Context, draft ListDraft) (*schema.List, error) {
	if draft.Name == "" {
		return nil, fmt.Errorf("list name is required")
	}
	if draft.SpaceID == "" {
		return nil, fmt.Errorf("list spaceId is required")
	}
	l := &schema.List{
		ID:        e.config.NewID(),
		Name:      draft.Name,
		SpaceID:   draft.SpaceID,
		FolderID:  draft.FolderID,
		Icon:      draft.Icon,
		Color:     draft.Color,
		Statuses:  schema.DefaultStatuses(),
		UpdatedAt: e.config.Now(),
	}
	var owner string
	var shared bool
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Lists = append(s.Lists, l)
		owner, shared = e.ownerFor(l.SharedMeta, l.SpaceID)
	})

	out := *l
	e.broadcast(realtime.UpdateList, out.SpaceID, &out)
	if shared {
		e.propagate(owner, realtime.UpdateList, &out)
	}
	return &out, nil
}

// UpdateList applies changes to a list.
func (e *Engine) UpdateList(ctx context.Context, id string, apply func(l *schema.List)) (*schema.List, error) {
	var out schema.List
	var found, shared bool
	var owner string

	_ = e.mutate(ctx, func(s *schema.State) {
		for _, l := range s.Lists {
			if l.ID == id {
				found = true
				apply(l)
				l.UpdatedAt = e.config.Now()
				out = *l
				owner, shared = e.ownerFor(l.SharedMeta, l.SpaceID)
				return
			}
		}
	})
	if !found {
		return nil, fmt.Errorf("list %s: %w", id, ErrNotFound)
	}

	e.broadcast(realtime.UpdateList, out.SpaceID, &out)
	if shared {
		e.propagate(owner, realtime.UpdateList, &out)
	}
	return &out, nil
}

// DeleteList removes a list and every task in it.
func (e *Engine) DeleteList(ctx context.Context, id string) error {
	var found, shared bool
	var owner, spaceID string

	_ = e.mutate(ctx, func(s *schema.State) {
		out := s.Lists[:0]
		for _, l := range s.Lists {
			if l.ID == id {
				found = true
				spaceID = l.SpaceID
				owner, shared = e.ownerFor(l.SharedMeta, l.SpaceID)
				continue
			}
			out = append(out, l)
		}
		s.Lists = out
		for tid, t := range s.Tasks {
			if t.ListID == id {
				delete(s.Tasks, tid)
			}
		}
	})
	if !found {
		return fmt.Errorf("list %s: %w", id, ErrNotFound)
	}

	e.broadcastDelete(realtime.UpdateList, spaceID, id)
	if shared {
		e.propagate(owner, realtime.UpdateListDelete, map[string]string{"id": id})
	}
	return nil
}

// AddDoc creates a document authored by the local user.
func (e *Engine) AddDoc(ctx context.Context, name, content, spaceID string) (*schema.Doc, error) {
	if name == "" {
		return nil, fmt.Errorf("doc name is required")
	}
	d := &schema.Doc{
		ID:        e.config.NewID(),
		Name:      name,
		Content:   content,
		SpaceID:   spaceID,
		UserID:    e.me.UserID,
		UserName:  e.me.UserName,
		UpdatedAt: e.config.Now(),
	}
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Docs = append(s.Docs, d)
	})
	out := *d
	return &out, nil
}

// UpdateDoc applies changes to a document.
func (e *Engine) UpdateDoc(ctx context.Context, id string, apply func(d *schema.Doc)) (*schema.Doc, error) {
	var out schema.Doc
	var found bool
	_ = e.mutate(ctx, func(s *schema.State) {
		for _, d := range s.Docs {
			if d.ID == id {
				found = true
				apply(d)
				d.UpdatedAt = e.config.Now()
				out = *d
				return
			}
		}
	})
	if !found {
		return nil, fmt.Errorf("doc %s: %w", id, ErrNotFound)
	}
	return &out, nil
}

// AddTag creates a tag.
func (e *Engine) AddTag(ctx context.Context, name, color string) (*schema.Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("tag name is required")
	}
	tag := &schema.Tag{ID: e.config.NewID(), Name: name, Color: color}
	_ = e.mutate(ctx, func(s *schema.State) {
		s.Tags = append(s.Tags, tag)
	})
	out := *tag
	return &out, nil
}

// DeleteTag removes a tag and strips it from every task.
func (e *Engine) DeleteTag(ctx context.Context, id string) error {
	return e.mutate(ctx, func(s *schema.State) {
		out := s.Tags[:0]
		for _, t := range s.Tags {
			if t.ID != id {
				out = append(out, t)
			}
		}
		s.Tags = out
		for _, t := range s.Tasks {
			kept := t.Tags[:0]
			for _, tg := range t.Tags {
				if tg != id {
					kept = append(kept, tg)
				}
			}
			t.Tags = kept
		}
	})
}
