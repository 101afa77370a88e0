// Package static embeds the page templates and browser assets.
package static

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/*
var assetFS embed.FS

// Pages lists the page templates. Every page is rendered inside layout.html.
var Pages = []string{"index", "enroll", "scan", "payment", "dashboard", "notfound"}

// ParsePages parses every page together with the layout.
func ParsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(Pages))
	for _, name := range Pages {
		t, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing page %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// GetFileSystem returns an http.FileSystem for the embedded assets directory.
func GetFileSystem() http.FileSystem {
	fsys, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}
