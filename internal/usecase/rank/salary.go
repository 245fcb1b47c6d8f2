package rank

import (
	"regexp"
	"strconv"
	"strings"
)

var salaryNumber = regexp.MustCompile(`\d[\d,]*`)

// ParseSalary extracts the largest number from a free-form salary string.
// A "k" anywhere in the string scales the result by a thousand. Returns 0 when no number is present.
func ParseSalary(s string) int {
	best := 0
	for _, m := range salaryNumber.FindAllString(s, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best > 0 && strings.ContainsAny(s, "kK") {
		best *= 1000
	}
	return best
}
