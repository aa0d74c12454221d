package change

import (
	"regexp"
	"strings"
	"unicode"

	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/utils"
)

// blankRun matches three or more consecutive line breaks.
var blankRun = regexp.MustCompile(`\n{3,}`)

// Apply applies c to doc and reports whether it changed anything. Only the
// first occurrence of the target is touched. When the target is absent doc
// is returned unchanged and a warning is logged; an earlier change may
// already have rewritten or removed it.
func Apply(doc string, c Change) (string, bool) {
	target := c.Target()
	idx := strings.Index(doc, target)
	if target == "" || idx < 0 {
		clog.Warn("change target not found in document",
			"type", c.Kind(),
			"target", preview(target),
		)
		return doc, false
	}

	switch v := c.(type) {
	case Rewrite:
		out := doc[:idx] + v.RewrittenText + doc[idx+len(target):]
		clog.Debug("applied rewrite", "before", len(doc), "after", len(out))
		return out, true
	case Removal:
		out := Normalize(doc[:idx] + doc[idx+len(target):])
		clog.Debug("applied removal", "before", len(doc), "after", len(out))
		return out, true
	default:
		return doc, false
	}
}

// Normalize strips trailing whitespace from every line, then collapses runs
// of three or more line breaks to exactly two.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

func preview(s string) string {
	return utils.Truncate(s, 53)
}
