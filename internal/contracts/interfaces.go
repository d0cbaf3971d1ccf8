package contracts

import (
	"context"
	"time"
)

// BarFetcher returns raw per-contract rows for a symbol and date range
// ⭐ SSOT: 외부 시세 소스는 이 인터페이스로만 연결
// A zero start or end means the range is unbounded on that side.
type BarFetcher interface {
	FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]RawRow, error)
}

// SymbolUniverse enumerates tradable contracts for a product root
type SymbolUniverse interface {
	Contracts(ctx context.Context, root string) ([]string, error)
}

// FetcherFunc adapts a function to BarFetcher
type FetcherFunc func(ctx context.Context, symbol string, start, end time.Time) ([]RawRow, error)

// FetchOne calls f
func (f FetcherFunc) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]RawRow, error) {
	return f(ctx, symbol, start, end)
}
