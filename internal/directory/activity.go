package directory

import "strings"

// splitActivityLabel applies the "Label - CODE" convention some sources use
// to carry the classification code inside the label. It only applies when no
// explicit code was given.
func splitActivityLabel(label, code string) (string, string) {
	if code != "" {
		return label, code
	}
	if i := strings.Index(label, " - "); i > 0 {
		return strings.TrimSpace(label[:i]), strings.TrimSpace(label[i+3:])
	}
	return label, code
}
