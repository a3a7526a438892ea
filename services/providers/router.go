package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
)

var (
	// ErrProviderAlreadyRegistered is returned when two adapters claim the same provider ID
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrNilAdapter is returned when a nil adapter is passed to NewRouter
	ErrNilAdapter = errors.New("adapter cannot be nil")
)

// Router maps provider IDs to adapters. The mapping is fixed at construction,
// so Dispatch is safe for concurrent use without locking.
type Router struct {
	adapters map[models.ProviderID]Adapter
	logger   *zap.Logger
	now      func() time.Time
}

// RouterOption customises a Router
type RouterOption func(*Router)

// WithClock replaces the wall clock used to time dispatches
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

// NewRouter creates a router over the given adapters
func NewRouter(logger *zap.Logger, adapters []Adapter, opts ...RouterOption) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		adapters: make(map[models.ProviderID]Adapter, len(adapters)),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, adapter := range adapters {
		if adapter == nil {
			return nil, ErrNilAdapter
		}
		if _, exists := r.adapters[adapter.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, adapter.ID())
		}
		r.adapters[adapter.ID()] = adapter
	}

	return r, nil
}

// Adapter returns the adapter registered for a provider
func (r *Router) Adapter(id models.ProviderID) (Adapter, bool) {
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// Providers returns the registered provider IDs, sorted
func (r *Router) Providers() []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Dispatch sends the request through the matching adapter and attaches the
// elapsed wall-clock time. It never returns nil and never panics.
func (r *Router) Dispatch(ctx context.Context, req *CanonicalRequest) (resp *ComparisonAPIResponse) {
	start := r.now()

	adapter, ok := r.adapters[req.ProviderID]
	if !ok {
		r.logger.Warn("dispatch to unknown provider", zap.String("provider", string(req.ProviderID)))
		return &ComparisonAPIResponse{
			Success:    false,
			Error:      "Unknown provider: " + string(req.ProviderID),
			Kind:       services.ErrorTypeUnknownProvider,
			DurationMs: ElapsedMs(start, r.now()),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("adapter panicked",
				zap.String("provider", string(req.ProviderID)),
				zap.String("model", req.ModelID),
				zap.Any("panic", rec),
			)
			resp = &ComparisonAPIResponse{
				Success:    false,
				Error:      fmt.Sprintf("%v", rec),
				Kind:       services.ErrorTypeInternal,
				DurationMs: ElapsedMs(start, r.now()),
			}
		}
	}()

	result, err := adapter.Send(ctx, req)
	durationMs := ElapsedMs(start, r.now())

	if err != nil {
		r.logger.Error("adapter failed unexpectedly",
			zap.String("provider", string(req.ProviderID)),
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return &ComparisonAPIResponse{
			Success:    false,
			Error:      unexpectedMessage(err),
			Kind:       services.ErrorTypeInternal,
			DurationMs: durationMs,
		}
	}
	if result == nil {
		return &ComparisonAPIResponse{
			Success:    false,
			Error:      "Unknown error",
			Kind:       services.ErrorTypeInternal,
			DurationMs: durationMs,
		}
	}

	r.logger.Debug("dispatch settled",
		zap.String("provider", string(req.ProviderID)),
		zap.String("model", req.ModelID),
		zap.Bool("success", result.Success),
		zap.Int64("duration_ms", durationMs),
	)

	return &ComparisonAPIResponse{
		Success:    result.Success,
		Response:   result.Response,
		Error:      result.Error,
		Kind:       result.Kind,
		DurationMs: durationMs,
		TokenUsage: result.TokenUsage,
	}
}

// TestConnection checks credentials through the matching adapter
func (r *Router) TestConnection(ctx context.Context, id models.ProviderID, creds Credentials) *ConnectionResult {
	adapter, ok := r.adapters[id]
	if !ok {
		return &ConnectionResult{Success: false, Error: "Unknown provider: " + string(id)}
	}

	result, err := adapter.TestConnection(ctx, creds)
	if err != nil {
		r.logger.Error("connection test failed unexpectedly",
			zap.String("provider", string(id)),
			zap.String("api_key", MaskAPIKey(creds.APIKey)),
			zap.Error(err),
		)
		return &ConnectionResult{Success: false, Error: unexpectedMessage(err)}
	}
	return result
}

// ElapsedMs returns the duration between two instants in whole milliseconds, rounded
func ElapsedMs(start, end time.Time) int64 {
	return int64(math.Round(float64(end.Sub(start)) / float64(time.Millisecond)))
}

func unexpectedMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
