package permission

import "strings"

// MenuItem is one entry of the portal navigation.
type MenuItem struct {
	Label    string    `json:"label"`
	Path     string    `json:"path"`
	SubItems []SubItem `json:"sub_items,omitempty"`
}

// SubItem is a navigable child of a module entry.
type SubItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// menuSubItems mirrors the navigation the portal renders. Sub-item labels
// are resolved to actions with ParseAction; report entries are views.
var menuSubItems = map[Module][]string{
	Stakeholder:        {"New Request", "Update", "Pending"},
	BackgroundCheck:    {"New Request", "Update", "Pending"},
	BadgeRequest:       {"New Request", "Pending"},
	AccessRequest:      {"New Request", "Update", "Pending"},
	Attendance:         {"New Request", "Update", "Pending"},
	VisitorsManagement: {"New Request", "Update", "Pending"},
	Reports:            {"SHR Report", "BCR Report", "BR Report", "Access Report", "Attendance Report", "Visitors Report"},
}

// Menu returns the navigation entries visible to subject. Modules whose
// sub-items are all denied are left out.
func Menu(subject Subject) []MenuItem {
	items := []MenuItem{{Label: "Dashboard", Path: "/dashboard"}}
	for _, spec := range catalog {
		entry := MenuItem{Label: spec.label, Path: "/" + spec.path}
		for _, label := range menuSubItems[spec.module] {
			action, ok := ParseAction(label)
			if !ok {
				action = View
			}
			if !Resolve(subject, spec.label, string(action)) {
				continue
			}
			entry.SubItems = append(entry.SubItems, SubItem{
				Label: label,
				Path:  "/" + spec.path + "/" + slug(label),
			})
		}
		if len(entry.SubItems) > 0 {
			items = append(items, entry)
		}
	}
	if subject != nil && subject.IsAdministrator() {
		items = append(items, MenuItem{Label: "Admin Dashboard", Path: "/admin"})
	}
	return items
}

func slug(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}
