package mode

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a mode id references neither a built-in nor a
// custom mode.
var ErrNotFound = errors.New("mode not found")

// Patch holds optional replacement fields for a custom mode. Nil fields are
// left unchanged; the mode id itself is immutable.
type Patch struct {
	Name   *string
	Prompt *string
	Icon   *string
	Color  *string
}

// state is the on-disk YAML document holding everything the registry persists:
// the active mode id and the user-created modes. Built-ins are code, not data.
type state struct {
	Active  string `yaml:"active"`
	Customs []Mode `yaml:"custom_modes"`
}

// Registry owns the set of transcription modes and the active-mode selection.
// Mutations are persisted to a YAML file before they are visible to readers.
type Registry struct {
	path string

	mu      sync.Mutex
	customs []Mode
	active  string
}

// NewRegistry loads the registry state from path, seeding a fresh state file
// with the default active mode on first run. The parent directory is created
// if absent.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, active: DefaultModeID}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := r.persistLocked(); err != nil {
			return nil, fmt.Errorf("mode: seed registry: %w", err)
		}
		slog.Info("mode registry seeded", "path", path, "active", r.active)
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("mode: read registry %q: %w", path, err)
	}

	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("mode: decode registry %q: %w", path, err)
	}
	if st.Active != "" {
		r.active = st.Active
	}
	r.customs = st.Customs
	for i := range r.customs {
		r.customs[i].Origin = OriginCustom
	}
	return r, nil
}

// ActiveMode returns the currently active mode. If the stored active id
// references neither a built-in nor a custom mode, it returns [ErrNotFound];
// callers recover with [Registry.ResetActive].
func (r *Registry) ActiveMode() (Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.lookupLocked(r.active)
	if !ok {
		return Mode{}, fmt.Errorf("mode: active id %q: %w", r.active, ErrNotFound)
	}
	return m, nil
}

// ResetActive reassigns the active mode to the built-in default and persists
// the change.
func (r *Registry) ResetActive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = DefaultModeID
	return r.persistLocked()
}

// List returns all modes: built-ins first in fixed order, then custom modes
// in creation order.
func (r *Registry) List() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Builtins()
	out = append(out, r.customs...)
	return out
}

// CreateCustom registers a new custom mode with a fresh unique id.
// An empty prompt is rejected.
func (r *Registry) CreateCustom(name, prompt, icon, color string) (Mode, error) {
	if prompt == "" {
		return Mode{}, fmt.Errorf("mode: create %q: prompt must not be empty", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := Mode{
		ID:        "custom-" + uuid.NewString(),
		Name:      name,
		Prompt:    prompt,
		Icon:      icon,
		Color:     color,
		Origin:    OriginCustom,
		CreatedAt: time.Now().UTC(),
	}
	r.customs = append(r.customs, m)
	if err := r.persistLocked(); err != nil {
		r.customs = r.customs[:len(r.customs)-1]
		return Mode{}, err
	}
	slog.Info("custom mode created", "id", m.ID, "name", m.Name)
	return m, nil
}

// UpdateCustom merges patch into the custom mode with the given id and
// persists the result. It reports false without error if the id is unknown
// or refers to a built-in.
func (r *Registry) UpdateCustom(id string, patch Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.customs {
		if r.customs[i].ID != id {
			continue
		}
		prev := r.customs[i]
		if patch.Name != nil {
			r.customs[i].Name = *patch.Name
		}
		if patch.Prompt != nil {
			if *patch.Prompt == "" {
				return false, fmt.Errorf("mode: update %q: prompt must not be empty", id)
			}
			r.customs[i].Prompt = *patch.Prompt
		}
		if patch.Icon != nil {
			r.customs[i].Icon = *patch.Icon
		}
		if patch.Color != nil {
			r.customs[i].Color = *patch.Color
		}
		if err := r.persistLocked(); err != nil {
			r.customs[i] = prev
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// DeleteCustom removes the custom mode with the given id. Deleting the
// active mode reassigns the active id to the built-in default as part of the
// same persisted operation, so no reader ever observes a dangling active id.
// Unknown ids and built-in ids are no-ops.
func (r *Registry) DeleteCustom(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.customs {
		if r.customs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	prevCustoms, prevActive := r.customs, r.active
	r.customs = append(append([]Mode{}, r.customs[:idx]...), r.customs[idx+1:]...)
	if r.active == id {
		r.active = DefaultModeID
	}
	if err := r.persistLocked(); err != nil {
		r.customs, r.active = prevCustoms, prevActive
		return err
	}
	slog.Info("custom mode deleted", "id", id, "active", r.active)
	return nil
}

// Cycle advances the active mode to the next entry in [Registry.List] order,
// wrapping at the end, and persists the new selection. If the current active
// id is dangling, cycling restarts from the head of the list.
func (r *Registry) Cycle() (Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := Builtins()
	all = append(all, r.customs...)

	next := all[0]
	for i := range all {
		if all[i].ID == r.active {
			next = all[(i+1)%len(all)]
			break
		}
	}

	prev := r.active
	r.active = next.ID
	if err := r.persistLocked(); err != nil {
		r.active = prev
		return Mode{}, err
	}
	return next, nil
}

// SetActive selects the mode with the given id and persists the choice.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookupLocked(id); !ok {
		return fmt.Errorf("mode: set active %q: %w", id, ErrNotFound)
	}
	prev := r.active
	r.active = id
	if err := r.persistLocked(); err != nil {
		r.active = prev
		return err
	}
	return nil
}

// lookupLocked finds a mode by id. Must be called with r.mu held.
func (r *Registry) lookupLocked(id string) (Mode, bool) {
	for _, m := range builtins {
		if m.ID == id {
			return m, true
		}
	}
	for _, m := range r.customs {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}

// persistLocked writes the registry state to disk. Must be called with r.mu
// held.
func (r *Registry) persistLocked() error {
	st := state{Active: r.active, Customs: r.customs}
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("mode: encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("mode: create registry dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("mode: write registry: %w", err)
	}
	return nil
}
