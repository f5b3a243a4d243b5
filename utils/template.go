package utils

import (
	"html"
	"regexp"
	"strings"

	"outreach/models"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_ ]+?)\s*\}\}`)
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
)

// ExpandVariables replaces {{field}} placeholders with values from the
// lead's core fields and custom-field bag. Field names are matched
// case-insensitively with underscores ignored. Unresolved placeholders are
// deleted rather than left verbatim.
func ExpandVariables(text string, lead *models.Lead) string {
	if text == "" || lead == nil {
		return text
	}

	fields := map[string]string{
		"email":     lead.Email,
		"firstname": lead.FirstName,
		"lastname":  lead.LastName,
		"company":   lead.Company,
	}
	for name, value := range lead.CustomFields() {
		fields[normalizeFieldName(name)] = value
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := fields[normalizeFieldName(name)]; ok {
			return value
		}
		return ""
	})
}

func normalizeFieldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}

// StripHTML converts an HTML body to plain text for text-only sends.
func StripHTML(htmlContent string) string {
	text := strings.ReplaceAll(htmlContent, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(text)
}
