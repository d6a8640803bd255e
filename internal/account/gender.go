package account

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeGender folds free-form gender input into the single-character code
// stored on profiles. Empty input yields nil.
func NormalizeGender(g string) *string {
	if g == "" {
		return nil
	}
	var code string
	switch strings.ToLower(g) {
	case "male", "m", "0":
		code = "M"
	case "female", "f", "1":
		code = "F"
	default:
		r, _ := utf8.DecodeRuneInString(g)
		code = string(unicode.ToUpper(r))
	}
	return &code
}
