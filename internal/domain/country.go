package domain

import "strings"

type Country struct {
	Name     string
	DialCode string
	Currency string
}

var countries = map[string]Country{
	"Congo Brazzaville": {Name: "Congo Brazzaville", DialCode: "242", Currency: "XAF"},
	"Cameroun":          {Name: "Cameroun", DialCode: "237", Currency: "XAF"},
	"Gabon":             {Name: "Gabon", DialCode: "241", Currency: "XAF"},
	"Tchad":             {Name: "Tchad", DialCode: "235", Currency: "XAF"},
	"Sénégal":           {Name: "Sénégal", DialCode: "221", Currency: "XOF"},
	"Côte d'Ivoire":     {Name: "Côte d'Ivoire", DialCode: "225", Currency: "XOF"},
	"Mali":              {Name: "Mali", DialCode: "223", Currency: "XOF"},
	"Bénin":             {Name: "Bénin", DialCode: "229", Currency: "XOF"},
}

func LookupCountry(name string) (Country, bool) {
	c, ok := countries[strings.TrimSpace(name)]
	return c, ok
}

// CountryForPhone guesses the country from an international dial prefix.
func CountryForPhone(phone string) (Country, bool) {
	digits := strings.TrimPrefix(NormalizePhone(phone), "+")
	for _, c := range countries {
		if strings.HasPrefix(digits, c.DialCode) {
			return c, true
		}
	}
	return Country{}, false
}

// PhoneSuffixLen is the number of trailing digits used when an exact phone
// match fails.
const PhoneSuffixLen = 8

// NormalizePhone strips separators and turns a 00 international prefix into +.
// Only ASCII digits are kept, so the result is always single-byte.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	return out
}

// PhoneSuffix returns the last PhoneSuffixLen significant digits, or all of
// them when the number is shorter.
func PhoneSuffix(phone string) string {
	digits := strings.TrimPrefix(NormalizePhone(phone), "+")
	if len(digits) <= PhoneSuffixLen {
		return digits
	}
	return digits[len(digits)-PhoneSuffixLen:]
}
