package main

import (
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

// postBody marks stored content as safe. Content is sanitized before it is
// stored, see sanitizeHTML.
func postBody(p Post) template.HTML {
	return template.HTML(p.Content)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func loadTemplates() map[string]*template.Template {
	templates := make(map[string]*template.Template)
	pages := []string{"index.html", "view.html", "create.html", "login.html"}

	funcs := template.FuncMap{
		"postBody": postBody,
		"date":     formatDate,
		"ago":      humanize.Time,
		"comma":    humanize.Comma,
	}

	for _, page := range pages {
		templates[page] = template.Must(
			template.New("").Funcs(funcs).ParseFiles(
				"templates/base.html",
				"templates/"+page,
			))
	}

	templates["widgets.html"] = template.Must(
		template.New("").Funcs(funcs).ParseFiles("templates/widgets.html"))

	return templates
}
