// ABOUTME: Stamp identifiers, canonical file naming, and term validation
// ABOUTME: Pure predicates shared by the term store, provisioner, and command handlers

package stamp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Valid stamp ids, inclusive on both ends.
const (
	MinID = 19
	MaxID = 39
)

const (
	fileNamePrefix = "Stamp_0"
	fileNameSuffix = "_Icon.png"
)

// ValidID reports whether id is inside the stamp catalog range.
func ValidID(id int) bool {
	return id >= MinID && id <= MaxID
}

// ValidTerm reports whether term is a non-empty run of letters and digits.
// Underscores, whitespace, punctuation and symbols are rejected.
func ValidTerm(term string) bool {
	if term == "" {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// FileName returns the canonical stamp reference for id.
// Example: 26 -> Stamp_026_Icon.png
func FileName(id int) string {
	return fmt.Sprintf("%s%d%s", fileNamePrefix, id, fileNameSuffix)
}

// ParseFileName extracts the id from a canonical stamp reference.
// The second result is false if name is not canonical or the id is out of range.
func ParseFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, fileNamePrefix) || !strings.HasSuffix(name, fileNameSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, fileNamePrefix), fileNameSuffix)
	id, err := strconv.Atoi(digits)
	if err != nil || !ValidID(id) {
		return 0, false
	}
	return id, true
}

// IDs returns every valid stamp id in ascending order.
func IDs() []int {
	ids := make([]int, 0, MaxID-MinID+1)
	for id := MinID; id <= MaxID; id++ {
		ids = append(ids, id)
	}
	return ids
}
