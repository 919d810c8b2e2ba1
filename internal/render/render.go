package render

import "strings"

// Markdown renders markdown content for terminal display
func Markdown(content string, opts Options) (string, error) {
	renderer, err := globalPool.get(opts)
	if err != nil {
		return "", err
	}
	defer globalPool.put(opts, renderer)

	return renderer.Render(content)
}

// Reply renders an assistant reply, falling back to the raw text when
// rendering fails. Surrounding blank lines added by glamour are trimmed.
func Reply(text string, opts Options) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	out, err := Markdown(text, opts)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
