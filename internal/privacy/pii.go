package privacy

import (
	"regexp"
)

// Category names a kind of PII.
type Category string

const (
	CategoryEmail Category = "email"
	CategoryCard  Category = "card"
	CategorySSN   Category = "ssn"
	CategoryPhone Category = "phone"
)

// Placeholders substituted for each category.
const (
	EmailPlaceholder = "[EMAIL]"
	CardPlaceholder  = "[CARD]"
	SSNPlaceholder   = "[SSN]"
	PhonePlaceholder = "[PHONE]"
)

type detector struct {
	category    Category
	pattern     *regexp.Regexp
	placeholder string
	// mask, when set, decides what part of a match is replaced.
	mask func(string) (string, bool)
}

// Order matters: cards run before phones so a card number is never
// partially masked as a phone, and SSNs before phones for the same reason.
var detectors = []detector{
	{
		category:    CategoryEmail,
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		placeholder: EmailPlaceholder,
	},
	{
		category:    CategoryCard,
		pattern:     regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
		placeholder: CardPlaceholder,
		mask:        maskCard,
	},
	{
		category:    CategorySSN,
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		placeholder: SSNPlaceholder,
	},
	{
		category:    CategoryPhone,
		pattern:     regexp.MustCompile(`(?:\(\d{3}\)\s*|\b\d{3}[-.]?)\d{3}[-.]?\d{4}\b`),
		placeholder: PhonePlaceholder,
	},
}

// MaskPII replaces every detected PII substring with its category
// placeholder and reports how many matches each category had.
func MaskPII(text string) (string, map[Category]int) {
	found := map[Category]int{}
	if text == "" {
		return text, found
	}
	for _, d := range detectors {
		d := d
		text = d.pattern.ReplaceAllStringFunc(text, func(m string) string {
			if d.mask == nil {
				found[d.category]++
				return d.placeholder
			}
			out, ok := d.mask(m)
			if ok {
				found[d.category]++
			}
			return out
		})
	}
	return text, found
}

// maskCard masks the longest Luhn-valid run of whole digit groups in m, so
// a card followed by a CVV or another short number is still caught.
func maskCard(m string) (string, bool) {
	if luhnValid(m) {
		return CardPlaceholder, true
	}
	groups := digitGroups(m)
	bestStart, bestEnd, bestDigits := -1, -1, 0
	for i := range groups {
		digits := 0
		for j := i; j < len(groups); j++ {
			digits += groups[j][1] - groups[j][0]
			if digits > 19 {
				break
			}
			if digits < 13 || digits <= bestDigits {
				continue
			}
			if luhnValid(m[groups[i][0]:groups[j][1]]) {
				bestStart, bestEnd, bestDigits = groups[i][0], groups[j][1], digits
			}
		}
	}
	if bestStart < 0 {
		return m, false
	}
	return m[:bestStart] + CardPlaceholder + m[bestEnd:], true
}

// digitGroups returns the byte ranges of the separator-delimited digit
// groups in s.
func digitGroups(s string) [][2]int {
	var groups [][2]int
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			groups = append(groups, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		groups = append(groups, [2]int{start, len(s)})
	}
	return groups
}

// luhnValid checks a 13-19 digit sequence (separators ignored) against the
// Luhn checksum.
func luhnValid(s string) bool {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
