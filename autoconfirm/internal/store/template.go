package store

import (
	"context"

	"github.com/hazyhaar/autoconfirm/rules"
)

// TemplatePatch lists the fields to change. Nil fields are kept.
type TemplatePatch struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Matcher     *rules.Matcher `json:"matcher,omitempty"`
	FillValue   *string        `json:"fillValue,omitempty"`
}

// AddTemplate appends t with a fresh custom ID and timestamps.
func (s *Store) AddTemplate(ctx context.Context, t rules.Template) (rules.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpls, err := s.templatesLocked(ctx)
	if err != nil {
		return rules.Template{}, err
	}
	ts := s.now().UnixMilli()
	t.ID = rules.NewCustomID()
	t.CreatedAt = ts
	t.UpdatedAt = ts
	tpls = append(tpls, t)
	if err := s.setJSON(ctx, rules.TemplatesKey, tpls); err != nil {
		return rules.Template{}, err
	}
	return t, nil
}

// UpdateTemplate applies patch to the template with id and bumps UpdatedAt.
func (s *Store) UpdateTemplate(ctx context.Context, id string, patch TemplatePatch) (rules.Template, error) {
	return s.modify(ctx, id, func(t *rules.Template) {
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Enabled != nil {
			t.Enabled = *patch.Enabled
		}
		if patch.Matcher != nil {
			t.Matcher = *patch.Matcher
		}
		if patch.FillValue != nil {
			t.FillValue = *patch.FillValue
		}
	})
}

// ToggleTemplate flips the enabled flag.
func (s *Store) ToggleTemplate(ctx context.Context, id string) (rules.Template, error) {
	return s.modify(ctx, id, func(t *rules.Template) { t.Enabled = !t.Enabled })
}

// DeleteTemplate removes the template with id.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpls, err := s.templatesLocked(ctx)
	if err != nil {
		return err
	}
	out := tpls[:0]
	found := false
	for _, t := range tpls {
		if t.ID == id {
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		return &ErrTemplateNotFound{ID: id}
	}
	return s.setJSON(ctx, rules.TemplatesKey, out)
}

// ResetTemplates replaces the list with the built-in defaults.
func (s *Store) ResetTemplates(ctx context.Context) ([]rules.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpls := rules.DefaultTemplates(s.now())
	if err := s.setJSON(ctx, rules.TemplatesKey, tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

func (s *Store) modify(ctx context.Context, id string, fn func(*rules.Template)) (rules.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpls, err := s.templatesLocked(ctx)
	if err != nil {
		return rules.Template{}, err
	}
	for i := range tpls {
		if tpls[i].ID != id {
			continue
		}
		fn(&tpls[i])
		tpls[i].UpdatedAt = s.now().UnixMilli()
		if err := s.setJSON(ctx, rules.TemplatesKey, tpls); err != nil {
			return rules.Template{}, err
		}
		return tpls[i], nil
	}
	return rules.Template{}, &ErrTemplateNotFound{ID: id}
}
