package render

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingKey is returned when a template references a variable that was
// not supplied. The wrapped error names the offending placeholder so admins
// can spot typos in edited templates.
var ErrMissingKey = errors.New("template references undefined variable")

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes every {name} placeholder in tmpl with vars[name].
//
// A placeholder without a matching key fails with ErrMissingKey rather than
// being left as literal text: silently broken notifications would hide
// template typos from the admins. Keys in vars that the template never
// references are ignored. The renderer is deliberately key-set-agnostic —
// the polling path and the webhook path substitute different variable sets,
// and each caller is responsible for supplying the set its templates are
// written against.
func Render(tmpl string, vars map[string]string) (string, error) {
	var missing []string

	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}

	return out, nil
}
