package main

import "regexp"

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptTagRe   = regexp.MustCompile(`(?i)</?script\b[^>]*>?`)
)

// sanitizeHTML strips script elements from user supplied markup. Removal is
// repeated until nothing changes, so fragments that reassemble into a tag
// after one pass are caught too. Other injection vectors such as event
// handler attributes are not handled here.
func sanitizeHTML(s string) string {
	for {
		out := scriptBlockRe.ReplaceAllString(s, "")
		out = scriptTagRe.ReplaceAllString(out, "")
		if out == s {
			return out
		}
		s = out
	}
}
