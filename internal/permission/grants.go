package permission

import "fmt"

// Grants is the stored grant table: module key to action key to allowed.
// Administrators edit it freely, so it may hold keys outside the catalog.
type Grants map[string]map[string]bool

// DefaultGrants returns a table with every catalog pair denied.
func DefaultGrants() Grants {
	g := make(Grants, len(catalog))
	for _, spec := range catalog {
		actions := make(map[string]bool, len(spec.actions))
		for _, a := range spec.actions {
			actions[string(a)] = false
		}
		g[string(spec.module)] = actions
	}
	return g
}

// Allowed returns the stored boolean for (m, a). Stored keys are matched by
// their normalized form; anything missing is denied.
func (g Grants) Allowed(m Module, a Action) bool {
	if g == nil {
		return false
	}
	if actions, ok := g[string(m)]; ok {
		if allowed, ok := actions[string(a)]; ok {
			return allowed
		}
	}
	wantModule, wantAction := Normalize(string(m)), Normalize(string(a))
	for key, actions := range g {
		if Normalize(key) != wantModule {
			continue
		}
		for action, allowed := range actions {
			if Normalize(action) == wantAction && allowed {
				return true
			}
		}
	}
	return false
}

// Set stores allowed for (m, a), creating the module entry when needed.
func (g Grants) Set(m Module, a Action, allowed bool) {
	actions, ok := g[string(m)]
	if !ok {
		actions = make(map[string]bool)
		g[string(m)] = actions
	}
	actions[string(a)] = allowed
}

// Any reports whether at least one pair is granted.
func (g Grants) Any() bool {
	for _, actions := range g {
		for _, allowed := range actions {
			if allowed {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the table.
func (g Grants) Clone() Grants {
	if g == nil {
		return nil
	}
	out := make(Grants, len(g))
	for module, actions := range g {
		cp := make(map[string]bool, len(actions))
		for a, allowed := range actions {
			cp[a] = allowed
		}
		out[module] = cp
	}
	return out
}

// Canonical rewrites the table onto catalog keys, dropping entries that do
// not name a catalog pair. An error lists the first unknown key found.
func (g Grants) Canonical() (Grants, error) {
	out := DefaultGrants()
	for key, actions := range g {
		m, ok := ParseModule(key)
		if !ok {
			return nil, fmt.Errorf("unknown module %q", key)
		}
		for name, allowed := range actions {
			a, ok := ParseAction(name)
			if !ok || !m.Supports(a) {
				return nil, fmt.Errorf("unknown action %q for module %q", name, m)
			}
			out.Set(m, a, allowed)
		}
	}
	return out, nil
}
