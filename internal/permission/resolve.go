package permission

// Subject is anything that carries a role and a grant table. Implementations
// must tolerate being called on a nil receiver.
type Subject interface {
	IsAdministrator() bool
	PermissionGrants() Grants
}

// Resolve decides whether subject may perform action on module. Administrators
// are allowed everything, including names the catalog does not know. For
// everyone else unknown names and unsupported pairs are denied.
func Resolve(subject Subject, module, action string) bool {
	if subject == nil {
		return false
	}
	if subject.IsAdministrator() {
		return true
	}
	m, ok := ParseModule(module)
	if !ok {
		return false
	}
	a, ok := ParseAction(action)
	if !ok || !m.Supports(a) {
		return false
	}
	return subject.PermissionGrants().Allowed(m, a)
}

// Allows is the typed form of Resolve.
func Allows(subject Subject, p Pair) bool {
	return Resolve(subject, string(p.Module), string(p.Action))
}

