package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/contracts"
)

// DefaultMaxSteps caps StepsForward iterations.
// Four years of a monthly cycle; a misconfigured cycle fails instead of looping.
const DefaultMaxSteps = 48

// Calendar performs contract-month arithmetic for products with known trading cycles
// ⭐ SSOT: 만기/롤 계산은 이 캘린더에서만
// The cycle table is injected at construction and never mutated afterwards.
type Calendar struct {
	cycles   map[string]TradingCycle
	maxSteps int
}

// Option configures a Calendar
type Option func(*Calendar)

// WithMaxSteps overrides the StepsForward iteration cap
func WithMaxSteps(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// New creates a calendar over the given product cycle overrides
func New(overrides map[string]TradingCycle, opts ...Option) *Calendar {
	cycles := make(map[string]TradingCycle, len(overrides))
	for root, cycle := range overrides {
		cycles[strings.ToUpper(root)] = append(TradingCycle(nil), cycle...)
	}

	c := &Calendar{
		cycles:   cycles,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefault creates a calendar with the built-in overrides
func NewDefault(opts ...Option) *Calendar {
	return New(DefaultCycles(), opts...)
}

// MaxSteps returns the StepsForward cap
func (c *Calendar) MaxSteps() int {
	return c.maxSteps
}

// CycleFor returns the cycle of a product root, defaulting to all twelve months
func (c *Calendar) CycleFor(root string) TradingCycle {
	if cycle, ok := c.cycles[strings.ToUpper(root)]; ok {
		return append(TradingCycle(nil), cycle...)
	}
	return append(TradingCycle(nil), AllMonths...)
}

// Step advances sym n positions along cycle, wrapping into later (or earlier) years
func (c *Calendar) Step(sym contracts.ContractSymbol, n int, cycle TradingCycle) (contracts.ContractSymbol, error) {
	pos := cycle.index(sym.Month)
	if pos < 0 {
		return contracts.ContractSymbol{}, fmt.Errorf("%w: %s not in %s", contracts.ErrMonthNotInCycle, sym, cycle.Letters())
	}

	size := len(cycle)
	target := pos + n

	return contracts.ContractSymbol{
		Root:  sym.Root,
		Month: cycle[floorMod(target, size)],
		Year:  sym.Year + floorDiv(target, size),
	}, nil
}

// GenerateLadder emits one symbol per month start within [start, end] whose month is in cycle
func (c *Calendar) GenerateLadder(root string, cycle TradingCycle, start, end time.Time) []contracts.ContractSymbol {
	root = strings.ToUpper(root)
	start = Day(start)
	end = Day(end)

	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	if cur.Before(start) {
		cur = cur.AddDate(0, 1, 0)
	}

	var ladder []contracts.ContractSymbol
	seen := make(map[contracts.ContractSymbol]bool)
	for ; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		if !cycle.Contains(cur.Month()) {
			continue
		}
		sym := contracts.ContractSymbol{Root: root, Month: cur.Month(), Year: cur.Year()}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		ladder = append(ladder, sym)
	}
	return ladder
}

// FrontAtDate returns the contract treated as front month on date
// Policy: the roll happens exactly at the month boundary. Exchange notice and
// last-trade days are not modelled.
func (c *Calendar) FrontAtDate(root string, cycle TradingCycle, date time.Time) (contracts.ContractSymbol, error) {
	if len(cycle) == 0 {
		return contracts.ContractSymbol{}, fmt.Errorf("%w: %s has an empty cycle", contracts.ErrMonthNotInCycle, root)
	}
	months := append(TradingCycle(nil), cycle...)
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })

	root = strings.ToUpper(root)
	for _, m := range months {
		if m >= date.Month() {
			return contracts.ContractSymbol{Root: root, Month: m, Year: date.Year()}, nil
		}
	}
	return contracts.ContractSymbol{Root: root, Month: months[0], Year: date.Year() + 1}, nil
}

// StepsForward counts cycle steps from -> to; zero when to is not strictly ahead
func (c *Calendar) StepsForward(from, to contracts.ContractSymbol, cycle TradingCycle) (int, error) {
	if to.ExpiryKey() <= from.ExpiryKey() {
		return 0, nil
	}

	cur := from
	for steps := 0; steps < c.maxSteps; steps++ {
		if cur == to {
			return steps, nil
		}
		next, err := c.Step(cur, 1, cycle)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return 0, fmt.Errorf("%w: %s from %s with cycle %s (cap %d)",
		contracts.ErrUnreachableSymbol, to, from, cycle.Letters(), c.maxSteps)
}

// Day truncates t to midnight UTC of its UTC calendar date
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
