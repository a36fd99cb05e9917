package availability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/workspace-agent/internal/calendar"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
	"github.com/teemow/workspace-agent/internal/slots"
)

// Sources of a slot search, used as a metric label.
const (
	SourceHTTP = "http"
	SourceMCP  = "mcp"
)

// Credentials hands out HTTP clients authorized as a session.
// session.Provider implements it.
type Credentials interface {
	Client(ctx context.Context, sessionID string) (*http.Client, error)
}

// Config configures a Service.
type Config struct {
	Credentials Credentials

	// CalendarOptions are passed to every calendar client.
	CalendarOptions []calendar.Option

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// Now returns the start of the search window (default: time.Now).
	Now func() time.Time
}

// Service finds free slots in a session's primary calendar.
type Service struct {
	credentials  Credentials
	calendarOpts []calendar.Option
	metrics      *instrumentation.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Result is the outcome of a slot search.
type Result struct {
	WindowStart time.Time
	WindowEnd   time.Time
	BusyCount   int
	Slots       []slots.Slot
}

// NewService creates a Service.
func NewService(config Config) (*Service, error) {
	if config.Credentials == nil {
		return nil, errors.New("credentials are required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		credentials:  config.Credentials,
		calendarOpts: append([]calendar.Option{calendar.WithMetrics(config.Metrics), calendar.WithLogger(logger)}, config.CalendarOptions...),
		metrics:      config.Metrics,
		logger:       logging.WithOperation(logger, "find_slots"),
		now:          now,
	}, nil
}

// GetBusyIntervals returns the busy intervals of the session's primary
// calendar between windowStart and windowEnd. Errors of the session layer,
// such as session.ErrNeedsReauth, are returned wrapped.
func (s *Service) GetBusyIntervals(ctx context.Context, sessionID string, windowStart, windowEnd time.Time) ([]slots.Interval, error) {
	httpClient, err := s.credentials.Client(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cal, err := calendar.NewClient(ctx, httpClient, s.calendarOpts...)
	if err != nil {
		return nil, err
	}
	return cal.BusyIntervals(ctx, windowStart, windowEnd)
}

// FindSlots runs the search described by req for sessionID. source labels
// the search in metrics.
func (s *Service) FindSlots(ctx context.Context, sessionID string, req Request, source string) (*Result, error) {
	ctx, span := instrumentation.StartSpan(ctx, "slots.find",
		instrumentation.NewSpanAttributeBuilder().
			WithSession(logging.AnonymizeSession(sessionID)).
			Build()...)
	defer span.End()

	result, err := s.findSlots(ctx, sessionID, req)
	if err != nil {
		s.metrics.RecordSlotSearch(ctx, source, instrumentation.StatusError, 0)
		instrumentation.SetSpanError(span, err)
		s.logger.Warn("Slot search failed",
			logging.SessionHash(sessionID),
			slog.String("source", source),
			logging.Err(err))
		return nil, err
	}

	s.metrics.RecordSlotSearch(ctx, source, instrumentation.StatusSuccess, len(result.Slots))
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithSlotSearch(req.Days, result.BusyCount, len(result.Slots)).
		Build()...)
	instrumentation.SetSpanSuccess(span)

	s.logger.Debug("Slot search completed",
		logging.SessionHash(sessionID),
		slog.String("source", source),
		slog.Int("busy", result.BusyCount),
		slog.Int("slots", len(result.Slots)))
	return result, nil
}

func (s *Service) findSlots(ctx context.Context, sessionID string, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	windowStart, windowEnd := req.Window(s.now())
	busy, err := s.GetBusyIntervals(ctx, sessionID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	busy = slots.MergeBusy(busy)

	found, err := slots.FindAvailableSlots(busy, windowStart, windowEnd, req.Duration(), req.WorkingHours())
	if err != nil {
		return nil, err
	}

	return &Result{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		BusyCount:   len(busy),
		Slots:       found,
	}, nil
}
