package repair

import (
	"regexp"
)

var flowHeader = regexp.MustCompile(`(?m)^(\s*(?:flowchart|graph))(?:[ \t]+(TD|TB|LR|RL|BT))?[ \t]*$`)

var flipped = map[string]string{
	"":   "LR",
	"TD": "LR",
	"TB": "LR",
	"LR": "TD",
	"BT": "RL",
	"RL": "BT",
}

// ToggleDirection flips the layout of a flowchart between vertical and
// horizontal. A header without a direction is treated as top-down. Other
// diagram types are returned unchanged with ok == false.
func ToggleDirection(code string) (string, bool) {
	loc := flowHeader.FindStringSubmatchIndex(code)
	if loc == nil {
		return code, false
	}

	keyword := code[loc[2]:loc[3]]
	dir := ""
	if loc[4] >= 0 {
		dir = code[loc[4]:loc[5]]
	}

	return code[:loc[0]] + keyword + " " + flipped[dir] + code[loc[1]:], true
}
