package seedmetric

import (
	"regexp"
	"sort"
	"strings"
)

// cityAliases maps short or informal spellings onto the canonical city name.
var cityAliases = map[string]string{
	"la":  "los angeles",
	"ny":  "new york",
	"nyc": "new york",
	"sf":  "san francisco",
	"dc":  "washington dc",
	"hk":  "hong kong",
	"kl":  "kuala lumpur",
}

// knownCities is the closed list of recognized cities, normalized lowercase.
var knownCities = []string{
	"amsterdam", "athens", "atlanta", "auckland", "austin", "bangkok",
	"barcelona", "beijing", "belgrade", "berlin", "bogota", "boston",
	"brisbane", "brussels", "bucharest", "budapest", "buenos aires",
	"cairo", "calgary", "cape town", "caracas", "chengdu", "chicago",
	"copenhagen", "dallas", "delhi", "denver", "detroit", "dubai",
	"dublin", "edinburgh", "frankfurt", "geneva", "guangzhou", "hamburg",
	"hanoi", "helsinki", "ho chi minh city", "hong kong", "honolulu",
	"houston", "istanbul", "jakarta", "johannesburg", "kiev", "kuala lumpur",
	"kyoto", "lagos", "las vegas", "lima", "lisbon", "london",
	"los angeles", "lyon", "madrid", "manchester", "manila", "melbourne",
	"mexico city", "miami", "milan", "minneapolis", "montreal", "moscow",
	"mumbai", "munich", "nagoya", "nairobi", "naples", "new orleans",
	"new york", "nice", "osaka", "oslo", "ottawa", "paris",
	"perth", "philadelphia", "phoenix", "portland", "prague", "quebec city",
	"reykjavik", "riga", "rio de janeiro", "riyadh", "rome", "rotterdam",
	"san antonio", "san diego", "san francisco", "san jose", "santiago",
	"sao paulo", "sapporo", "seattle", "seoul", "shanghai", "shenzhen",
	"singapore", "sofia", "st petersburg", "stockholm", "stuttgart",
	"sydney", "taipei", "tallinn", "tel aviv", "tokyo", "toronto",
	"valencia", "vancouver", "venice", "vienna", "vilnius", "warsaw",
	"washington dc", "wellington", "winnipeg", "yokohama", "zagreb", "zurich",
}

var cityIndex = func() map[string]bool {
	idx := make(map[string]bool, len(knownCities))
	for _, c := range knownCities {
		idx[c] = true
	}
	return idx
}()

// ExtractCities scans a lowercase-normalized query for known cities and
// aliases, preserving first-appearance order without duplicates.
func ExtractCities(query string) []string {
	lower := " " + strings.ToLower(query) + " "
	type hit struct {
		pos  int
		city string
	}
	var hits []hit
	seen := make(map[string]bool)

	record := func(pos int, city string) {
		if !seen[city] {
			seen[city] = true
			hits = append(hits, hit{pos: pos, city: city})
		}
	}

	for _, city := range knownCities {
		if pos := indexWord(lower, city); pos >= 0 {
			record(pos, city)
		}
	}
	for alias, city := range cityAliases {
		if pos := indexWord(lower, alias); pos >= 0 {
			record(pos, city)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.city
	}
	return out
}

// indexWord finds needle in padded haystack only at word boundaries.
func indexWord(padded, needle string) int {
	start := 0
	for {
		pos := strings.Index(padded[start:], needle)
		if pos < 0 {
			return -1
		}
		abs := start + pos
		before := padded[abs-1]
		after := padded[abs+len(needle)]
		if !isWordByte(before) && !isWordByte(after) {
			return abs
		}
		start = abs + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

var yearPattern = regexp.MustCompile(`\b(19[5-9]\d|20[0-2]\d)\b`)

// ExtractDecade maps the first year match in 1950-2029 onto its decade label
// ("90s", "2010s"). Empty when no year is present.
func ExtractDecade(query string) string {
	m := yearPattern.FindString(query)
	if m == "" {
		return ""
	}
	decade := m[:3] + "0s"
	if strings.HasPrefix(m, "19") {
		return decade[2:]
	}
	return decade
}
