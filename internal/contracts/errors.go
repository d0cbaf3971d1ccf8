package contracts

import "errors"

// Structural errors are fatal to the call that triggered them.
var (
	ErrInvalidSymbolFormat = errors.New("invalid contract symbol format")
	ErrUnreachableSymbol   = errors.New("symbol unreachable within step cap")
	ErrMonthNotInCycle     = errors.New("contract month not in trading cycle")
	ErrRootMismatch        = errors.New("contract root mismatch")
	ErrMissingDateColumn   = errors.New("no date-like column found")
	ErrNoCloseField        = errors.New("close field absent from series")
	ErrEmptySeries         = errors.New("empty series")
	ErrMissingFetcher      = errors.New("bar fetcher required")
	ErrInvalidRequest      = errors.New("invalid build request")
)

// ErrFetchFailed marks a per-symbol fetch failure; the symbol is skipped, not the build.
var ErrFetchFailed = errors.New("fetch failed")
