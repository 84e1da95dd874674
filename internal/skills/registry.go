package skills

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound indicates no skill could be resolved for a name.
var ErrNotFound = errors.New("skill not found")

// Registry maps skill names to implementations. Registration happens at
// process start; resolution is read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Skill
	byAlias map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Skill),
		byAlias: make(map[string]string),
	}
}

// Register adds a skill and its aliases. Re-registering a name or
// claiming an alias already taken is an error.
func (r *Registry) Register(s Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := normalize(s.Name())
	if name == "" {
		return fmt.Errorf("skill has empty name")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("skill %q already registered", s.Name())
	}
	r.byName[name] = s

	for _, alias := range s.Aliases() {
		a := normalize(alias)
		if a == "" || a == name {
			continue
		}
		if owner, taken := r.byAlias[a]; taken && owner != name {
			return fmt.Errorf("alias %q already claimed by %q", alias, owner)
		}
		r.byAlias[a] = name
	}
	return nil
}

// Resolve finds a skill by name. Resolution order is exact canonical
// name, then registered alias, then fuzzy match (normalized prefix or
// substring, accepted only when unambiguous).
func (r *Registry) Resolve(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := normalize(name)
	if n == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNotFound)
	}

	if s, ok := r.byName[n]; ok {
		return s, nil
	}
	if canonical, ok := r.byAlias[n]; ok {
		return r.byName[canonical], nil
	}

	var candidates []string
	for canonical := range r.byName {
		if strings.HasPrefix(canonical, n) || strings.Contains(canonical, n) {
			candidates = append(candidates, canonical)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	case 1:
		return r.byName[candidates[0]], nil
	default:
		sort.Strings(candidates)
		return nil, fmt.Errorf("%w: %q is ambiguous (matches %s)",
			ErrNotFound, name, strings.Join(candidates, ", "))
	}
}

// Names returns the canonical names of all registered skills, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// normalize lowercases a name and collapses separators so that
// "Text-Transform" and "text_transform" resolve identically.
func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	return n
}
