package audio

import (
	"fmt"
	"regexp"
	"strings"
)

// baseURL is the Merriam-Webster pronunciation file host.
const baseURL = "https://media.merriam-webster.com/audio/prons/en/us/mp3"

// idPattern is the allowed shape of an audio identifier. Anything else (path
// separators, whitespace, leading underscore) is rejected before it reaches
// the filesystem or the URL.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)

// ValidID reports whether id is a well-formed audio identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// SubdirFor derives the URL subdirectory for an audio identifier, per the
// Merriam-Webster media layout: "bix" and "gg" prefixes keep their own
// directories, identifiers starting with a digit or underscore live under
// "number", everything else under its first letter.
func SubdirFor(id string) string {
	switch {
	case strings.HasPrefix(id, "bix"):
		return "bix"
	case strings.HasPrefix(id, "gg"):
		return "gg"
	case id != "" && (id[0] >= '0' && id[0] <= '9' || id[0] == '_'):
		return "number"
	case id != "":
		return strings.ToLower(id[:1])
	default:
		return ""
	}
}

// URLFor builds the download URL for an audio identifier.
func URLFor(id string) string {
	return fmt.Sprintf("%s/%s/%s.mp3", baseURL, SubdirFor(id), id)
}
