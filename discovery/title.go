package discovery

import (
	"strings"

	"golang.org/x/net/html"
)

// Title returns the text of the first <title> element in markup, or "".
func Title(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
