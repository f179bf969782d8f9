package mediaproxy

import (
	"regexp"
	"strings"
)

// FormLogoFile is the manifest filename rendered into the form header.
const FormLogoFile = "form_logo.png"

var (
	jrReferenceRe   = regexp.MustCompile(`"jr://[\w-]+/([^"]+)"`)
	logoPlaceholder = regexp.MustCompile(`<section\s+class="form-logo"[^>]*>`)
)

// Document is a transformed form. Media maps escaped filenames to local URLs.
type Document struct {
	Form  string            `json:"form"`
	Model string            `json:"model"`
	Media map[string]string `json:"-"`
}

// ReferenceRewriter substitutes embedded jr:// media references.
type ReferenceRewriter interface {
	Rewrite(doc Document) Document
}

// RegexpRewriter matches quoted jr:// references textually.
type RegexpRewriter struct{}

func (RegexpRewriter) Rewrite(doc Document) Document {
	out := Document{
		Form:  replaceMediaSources(doc.Form, doc.Media),
		Model: replaceMediaSources(doc.Model, doc.Media),
		Media: doc.Media,
	}
	if logo, ok := doc.Media[FormLogoFile]; ok {
		out.Form = insertFormLogo(out.Form, logo)
	}
	return out
}

func replaceMediaSources(s string, media map[string]string) string {
	if len(media) == 0 || !strings.Contains(s, "jr://") {
		return s
	}
	return jrReferenceRe.ReplaceAllStringFunc(s, func(match string) string {
		name := jrReferenceRe.FindStringSubmatch(match)[1]
		local, ok := media[name]
		if !ok {
			return match
		}
		return `"` + local + `"`
	})
}

func insertFormLogo(form, logoURL string) string {
	loc := logoPlaceholder.FindStringIndex(form)
	if loc == nil {
		return form
	}
	img := `<img src="` + logoURL + `" alt="form logo">`
	return form[:loc[1]] + img + form[loc[1]:]
}
