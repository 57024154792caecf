package queue

import "sort"

// Action is a doctor-to-nurse instruction code.
type Action struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var actionCatalog = map[string]string{
	"D":    "Dilatation",
	"DOD":  "Dilatation OD",
	"DOG":  "Dilatation OG",
	"DODG": "Dilatation ODG",
}

// LookupAction returns the label for a known action code.
func LookupAction(code string) (string, bool) {
	label, ok := actionCatalog[code]
	return label, ok
}

// Actions lists the catalog ordered by code.
func Actions() []Action {
	out := make([]Action, 0, len(actionCatalog))
	for code, label := range actionCatalog {
		out = append(out, Action{Code: code, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
