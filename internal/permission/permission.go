// Package permission holds the fixed catalog of portal modules and actions and
// the single lookup every other package uses to decide whether a profile may
// perform an action.
package permission

import (
	"strings"
	"unicode"
)

// Module is a grant-table key for a functional area of the portal.
type Module string

const (
	Stakeholder        Module = "stakeholder"
	BackgroundCheck    Module = "backgroundCheck"
	BadgeRequest       Module = "badgeRequest"
	AccessRequest      Module = "accessRequest"
	Attendance         Module = "attendance"
	VisitorsManagement Module = "visitorsManagement"
	Reports            Module = "reports"
)

// Action is a grant-table key for an operation within a module.
type Action string

const (
	View   Action = "view"
	Create Action = "create"
	Edit   Action = "edit"
	Delete Action = "delete"
)

// Pair names one grantable (module, action) combination.
type Pair struct {
	Module Module
	Action Action
}

func (p Pair) String() string {
	return string(p.Module) + "." + string(p.Action)
}

type moduleSpec struct {
	module  Module
	label   string
	path    string
	actions []Action
	aliases []string
}

var crudActions = []Action{View, Create, Edit, Delete}

// catalog is ordered the way the portal navigation lists the modules.
var catalog = []moduleSpec{
	{module: Stakeholder, label: "Stake Holder Request", path: "stakeholder", actions: crudActions},
	{module: BackgroundCheck, label: "Background Check Request", path: "background", actions: crudActions, aliases: []string{"background_check"}},
	{module: BadgeRequest, label: "Badge Request", path: "badge", actions: crudActions, aliases: []string{"badge_request"}},
	{module: AccessRequest, label: "Access Request", path: "access", actions: crudActions, aliases: []string{"access_request"}},
	{module: Attendance, label: "Attendance", path: "attendance", actions: crudActions},
	{module: VisitorsManagement, label: "Visitors Management", path: "visitors", actions: crudActions, aliases: []string{"visitors"}},
	{module: Reports, label: "Reports", path: "reports", actions: []Action{View, Create}},
}

// actionAliases maps navigation sub-item labels onto actions.
var actionAliases = map[string]Action{
	"view":       View,
	"create":     Create,
	"edit":       Edit,
	"delete":     Delete,
	"newrequest": Create,
	"update":     Edit,
	"pending":    View,
}

var moduleIndex = buildModuleIndex()

func buildModuleIndex() map[string]*moduleSpec {
	idx := make(map[string]*moduleSpec)
	for i := range catalog {
		spec := &catalog[i]
		idx[Normalize(string(spec.module))] = spec
		idx[Normalize(spec.label)] = spec
		for _, alias := range spec.aliases {
			idx[Normalize(alias)] = spec
		}
	}
	return idx
}

// Normalize lower-cases name and strips every whitespace rune. It is the only
// way a human-readable label or a stored key is turned into a lookup key.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ParseModule resolves a storage key, label or alias to its Module.
func ParseModule(name string) (Module, bool) {
	spec, ok := moduleIndex[Normalize(name)]
	if !ok {
		return "", false
	}
	return spec.module, true
}

// ParseAction resolves an action key or navigation label to its Action.
func ParseAction(name string) (Action, bool) {
	a, ok := actionAliases[Normalize(name)]
	return a, ok
}

// Modules returns every module in navigation order.
func Modules() []Module {
	out := make([]Module, len(catalog))
	for i, spec := range catalog {
		out[i] = spec.module
	}
	return out
}

// Actions returns the actions the module supports.
func (m Module) Actions() []Action {
	spec, ok := moduleIndex[Normalize(string(m))]
	if !ok {
		return nil
	}
	out := make([]Action, len(spec.actions))
	copy(out, spec.actions)
	return out
}

// Supports reports whether (m, a) is a grantable pair.
func (m Module) Supports(a Action) bool {
	for _, candidate := range m.Actions() {
		if candidate == a {
			return true
		}
	}
	return false
}

// Label is the human-readable navigation name of the module.
func (m Module) Label() string {
	if spec, ok := moduleIndex[Normalize(string(m))]; ok {
		return spec.label
	}
	return string(m)
}

// Pairs lists every grantable pair of the catalog.
func Pairs() []Pair {
	var out []Pair
	for _, spec := range catalog {
		for _, a := range spec.actions {
			out = append(out, Pair{Module: spec.module, Action: a})
		}
	}
	return out
}
