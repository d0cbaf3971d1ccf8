package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/contracts"
)

// TradingCycle is the ordered set of months a product lists contracts in
type TradingCycle []time.Month

// AllMonths is the default cycle: every calendar month
var AllMonths = TradingCycle{
	time.January, time.February, time.March, time.April, time.May, time.June,
	time.July, time.August, time.September, time.October, time.November, time.December,
}

// DefaultCycles returns the built-in product overrides
// ICE coffee lists H K N U Z only.
func DefaultCycles() map[string]TradingCycle {
	return map[string]TradingCycle{
		"KC": {time.March, time.May, time.July, time.September, time.December},
	}
}

// NewTradingCycle sorts and de-duplicates months, rejecting anything outside 1-12
func NewTradingCycle(months ...time.Month) (TradingCycle, error) {
	if len(months) == 0 {
		return nil, fmt.Errorf("trading cycle needs at least one month")
	}

	seen := make(map[time.Month]bool, len(months))
	cycle := make(TradingCycle, 0, len(months))
	for _, m := range months {
		if m < time.January || m > time.December {
			return nil, fmt.Errorf("month %d out of range", m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		cycle = append(cycle, m)
	}

	sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
	return cycle, nil
}

// ParseCycleLetters builds a cycle from month letters ("H K N U Z" or "HKNUZ")
func ParseCycleLetters(letters ...string) (TradingCycle, error) {
	var months []time.Month
	for _, chunk := range letters {
		for _, r := range strings.ToUpper(chunk) {
			if r == ' ' || r == ',' || r == '\t' {
				continue
			}
			if r > 'Z' {
				return nil, fmt.Errorf("unknown month code %q", r)
			}
			m, ok := contracts.MonthFromCode(byte(r))
			if !ok {
				return nil, fmt.Errorf("unknown month code %q", r)
			}
			months = append(months, m)
		}
	}
	return NewTradingCycle(months...)
}

// Contains reports whether m is in the cycle
func (c TradingCycle) Contains(m time.Month) bool {
	return c.index(m) >= 0
}

// Letters renders the cycle as month letters
func (c TradingCycle) Letters() string {
	var b strings.Builder
	for _, m := range c {
		b.WriteByte(contracts.MonthCode(m))
	}
	return b.String()
}

func (c TradingCycle) index(m time.Month) int {
	for i, cm := range c {
		if cm == m {
			return i
		}
	}
	return -1
}
