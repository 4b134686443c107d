package digest

import (
	"fmt"
	"html"
	"strings"

	"tyomaat-portal/internal/mail"
	"tyomaat-portal/internal/models"
)

// DefaultMaxItems is the number of projects listed in one email
const DefaultMaxItems = 30

// Compose builds the digest email for w. At most maxItems projects are listed;
// the rest are summarized in a truncation note.
func Compose(w *models.Watch, projects []models.Project, baseURL string, maxItems int) mail.Message {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	shown := projects
	if len(shown) > maxItems {
		shown = shown[:maxItems]
	}
	rest := len(projects) - len(shown)
	link := strings.TrimRight(baseURL, "/") + "/projects"

	name := strings.TrimSpace(w.Name)
	if name == "" {
		name = "Hakuvahti"
	}
	subject := fmt.Sprintf("%s: %d uutta työmaata", name, len(projects))
	if len(projects) == 1 {
		subject = fmt.Sprintf("%s: 1 uusi työmaa", name)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hakuvahtisi \"%s\" löysi uusia työmaita:\n\n", name)
	for i := range shown {
		fmt.Fprintf(&text, "- %s\n", describe(&shown[i]))
	}
	if rest > 0 {
		fmt.Fprintf(&text, "\n...ja %d muuta. Katso kaikki palvelussa.\n", rest)
	}
	fmt.Fprintf(&text, "\n%s\n", link)

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>Hakuvahti: %s</h2>\n<ul class=\"projects\">\n", html.EscapeString(name))
	for i := range shown {
		p := &shown[i]
		fmt.Fprintf(&body, "<li><strong>%s</strong> %s</li>\n",
			html.EscapeString(p.Name), html.EscapeString(place(p)))
	}
	body.WriteString("</ul>\n")
	if rest > 0 {
		fmt.Fprintf(&body, "<p class=\"truncated\">...ja %d muuta.</p>\n", rest)
	}
	fmt.Fprintf(&body, "<p><a href=\"%s\">Avaa Työmaat.fi</a></p>\n", html.EscapeString(link))

	return mail.Message{
		Subject: subject,
		Text:    text.String(),
		HTML:    body.String(),
	}
}

func describe(p *models.Project) string {
	return p.Name + " " + place(p)
}

// place renders "(city, region · phase)" leaving out empty parts
func place(p *models.Project) string {
	parts := make([]string, 0, 2)
	if p.City != "" {
		parts = append(parts, p.City)
	}
	if r := p.RegionValue(); r != "" {
		parts = append(parts, r)
	}
	loc := strings.Join(parts, ", ")
	label := p.Phase.Label()
	if loc == "" {
		return "(" + label + ")"
	}
	return "(" + loc + " · " + label + ")"
}
