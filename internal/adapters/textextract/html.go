package textextract

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML reduces an HTML document to its visible text. Script and style
// bodies are dropped, block-ish boundaries become newlines.
func StripHTML(src string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skipDepth++
				continue
			}
			if isBlockTag(tag) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if isBlockTag(tag) {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
	}
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "br", "tr", "li", "table", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
