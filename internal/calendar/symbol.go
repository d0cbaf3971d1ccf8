package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tagomatech/ETL/internal/contracts"
)

var symbolPattern = regexp.MustCompile(`^([A-Z]+)([FGHJKMNQUVXZ])(\d{2})$`)

// ParseSymbol parses a canonical contract symbol such as "KCZ25"
// Two-digit years 00-69 map to 2000-2069, 70-99 to 1970-1999.
func ParseSymbol(s string) (contracts.ContractSymbol, error) {
	m := symbolPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return contracts.ContractSymbol{}, fmt.Errorf("%w: %q", contracts.ErrInvalidSymbolFormat, s)
	}

	month, _ := contracts.MonthFromCode(m[2][0])
	yy, _ := strconv.Atoi(m[3])

	return contracts.ContractSymbol{
		Root:  m[1],
		Month: month,
		Year:  expandYear(yy),
	}, nil
}

// MustParseSymbol is ParseSymbol for literals; it panics on bad input
func MustParseSymbol(s string) contracts.ContractSymbol {
	sym, err := ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}

// ExpiryKey parses s and returns its expiry ordering key
func ExpiryKey(s string) (int, error) {
	sym, err := ParseSymbol(s)
	if err != nil {
		return 0, err
	}
	return sym.ExpiryKey(), nil
}

// NormalizeRoot upper-cases a product root and checks it is letters only
func NormalizeRoot(root string) (string, error) {
	r := strings.ToUpper(strings.TrimSpace(root))
	if r == "" || strings.IndexFunc(r, func(c rune) bool { return c < 'A' || c > 'Z' }) >= 0 {
		return "", fmt.Errorf("%w: root %q must be letters only", contracts.ErrInvalidSymbolFormat, root)
	}
	return r, nil
}

func expandYear(yy int) int {
	if yy <= 69 {
		return 2000 + yy
	}
	return 1900 + yy
}
