package app

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/admin.html
var adminFS embed.FS

var adminTemplate = template.Must(template.ParseFS(adminFS, "templates/admin.html"))

// adminSection is one page of the admin console. The page itself is public;
// its data comes from APIPath, which requires a session.
type adminSection struct {
	Name     string
	Title    string
	APIPath  string
	LivePath string
}

var adminSections = []adminSection{
	{Name: "dashboard", Title: "Dashboard", APIPath: "/api/dashboard", LivePath: "/api/live/dashboard"},
	{Name: "clients", Title: "Clients", APIPath: "/api/clients"},
	{Name: "analytics", Title: "Analytics", APIPath: "/api/analytics"},
	{Name: "profile", Title: "Profile", APIPath: "/api/profile"},
}

func findAdminSection(name string) (adminSection, bool) {
	for _, section := range adminSections {
		if section.Name == name {
			return section, true
		}
	}
	return adminSection{}, false
}

func renderAdminPage(section adminSection) (string, error) {
	var buf bytes.Buffer
	err := adminTemplate.Execute(&buf, map[string]any{
		"Section":  section.Name,
		"Title":    section.Title,
		"APIPath":  section.APIPath,
		"LivePath": section.LivePath,
		"Sections": adminSections,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
