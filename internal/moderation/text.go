package moderation

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup from rich-text input and collapses whitespace, so the gate
// screens what a reader would actually see. Input that is not HTML passes through.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("script, style").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return collapse(strings.Join(parts, " "))
}

// ScreeningText joins a title and description into the text passed to the gate.
func ScreeningText(title, description string) string {
	return strings.TrimSpace(PlainText(title) + "\n" + PlainText(description))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
