package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// BarSource supplies 1-minute bars in ascending time order
type BarSource interface {
	Name() string

	// GetBars returns the bars with start <= Time < end
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)

	// GetLatestBars returns up to n of the most recent bars of the current session
	GetLatestBars(ctx context.Context, symbol string, n int) ([]model.Bar, error)

	// IsAvailable reports whether the source is configured and usable
	IsAvailable() bool
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrNoData is returned when a source has no bars for the request
var ErrNoData = errors.New("no data available")

// FallbackProvider tries multiple sources in order
type FallbackProvider struct {
	sources []BarSource
}

// NewFallbackProvider keeps only the available sources
func NewFallbackProvider(sources ...BarSource) *FallbackProvider {
	available := make([]BarSource, 0, len(sources))
	for _, s := range sources {
		if s.IsAvailable() {
			available = append(available, s)
		}
	}
	return &FallbackProvider{sources: available}
}

func (f *FallbackProvider) Name() string {
	return "fallback"
}

// IsAvailable returns true if any source is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.sources) > 0
}

// GetBars tries each source in order until one returns bars
func (f *FallbackProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	return f.try(symbol, func(s BarSource) ([]model.Bar, error) {
		return s.GetBars(ctx, symbol, start, end)
	})
}

// GetLatestBars tries each source in order until one returns bars
func (f *FallbackProvider) GetLatestBars(ctx context.Context, symbol string, n int) ([]model.Bar, error) {
	return f.try(symbol, func(s BarSource) ([]model.Bar, error) {
		return s.GetLatestBars(ctx, symbol, n)
	})
}

func (f *FallbackProvider) try(symbol string, fetch func(BarSource) ([]model.Bar, error)) ([]model.Bar, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("no available bar source for %s", symbol)
	}

	var lastErr error
	for _, s := range f.sources {
		bars, err := fetch(s)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		if err == nil {
			err = &ProviderError{Provider: s.Name(), Err: ErrNoData}
		}
		lastErr = err
		logger.Debug("[DATA] %s via %s failed: %v", symbol, s.Name(), err)
	}
	return nil, lastErr
}

// Sources returns the underlying available sources
func (f *FallbackProvider) Sources() []BarSource {
	return f.sources
}

// lastN returns the tail of bars
func lastN(bars []model.Bar, n int) []model.Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
