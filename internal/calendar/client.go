package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
	"github.com/teemow/workspace-agent/internal/slots"
)

const (
	// DefaultMaxRetries bounds attempts on rate limiting and server errors.
	DefaultMaxRetries = 3

	// DefaultMaxElapsedTime bounds the total time spent retrying.
	DefaultMaxElapsedTime = 10 * time.Second
)

// Client wraps the Google Calendar service.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	maxRetries     uint
	maxElapsedTime time.Duration
	newBackOff     func() backoff.BackOff
}

type clientConfig struct {
	endpoint string
	client   Client
}

// Option configures a Client.
type Option func(*clientConfig)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) { c.endpoint = endpoint }
}

// WithMetrics records API calls on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *clientConfig) { c.client.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.client.logger = l }
}

// WithRetry sets the retry budget and the backoff policy between attempts.
func WithRetry(maxRetries uint, maxElapsedTime time.Duration, newBackOff func() backoff.BackOff) Option {
	return func(c *clientConfig) {
		c.client.maxRetries = maxRetries
		c.client.maxElapsedTime = maxElapsedTime
		if newBackOff != nil {
			c.client.newBackOff = newBackOff
		}
	}
}

// NewClient creates a Calendar client that sends requests through
// httpClient, which must already be authorized.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("http client cannot be nil")
	}

	cfg := clientConfig{
		client: Client{
			logger:         slog.Default(),
			maxRetries:     DefaultMaxRetries,
			maxElapsedTime: DefaultMaxElapsedTime,
			newBackOff: func() backoff.BackOff {
				return backoff.NewExponentialBackOff()
			},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(cfg.endpoint))
	}

	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	c := cfg.client
	c.svc = svc
	c.logger = logging.WithService(c.logger, instrumentation.ServiceCalendar)
	return &c, nil
}

// QueryFreeBusy returns the busy intervals of calendarIDs in
// [timeMin, timeMax). Calendars are returned in request order.
func (c *Client) QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarIDs []string) ([]FreeBusyInfo, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, instrumentation.OperationFreeBusy)
	defer span.End()

	items := make([]*calendar.FreeBusyRequestItem, len(calendarIDs))
	for i, id := range calendarIDs {
		items[i] = &calendar.FreeBusyRequestItem{Id: id}
	}
	query := &calendar.FreeBusyRequest{
		TimeMin: timeMin.UTC().Format(time.RFC3339),
		TimeMax: timeMax.UTC().Format(time.RFC3339),
		Items:   items,
	}

	start := time.Now()
	result, err := backoff.Retry(ctx, func() (*calendar.FreeBusyResponse, error) {
		resp, err := c.svc.Freebusy.Query(query).Context(ctx).Do()
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithMaxElapsedTime(c.maxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Retrying freebusy query", logging.Err(err), slog.Duration("backoff", next))
		}),
	)
	if err != nil {
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, instrumentation.OperationFreeBusy, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to query freebusy: %w", err)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, instrumentation.OperationFreeBusy, instrumentation.StatusSuccess, time.Since(start))

	infos := make([]FreeBusyInfo, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		info := FreeBusyInfo{Calendar: id}

		cal, ok := result.Calendars[id]
		if !ok {
			info.Errors = append(info.Errors, "missing")
			infos = append(infos, info)
			continue
		}

		for _, e := range cal.Errors {
			info.Errors = append(info.Errors, e.Reason)
		}
		for _, busy := range cal.Busy {
			interval, err := parsePeriod(busy)
			if err != nil {
				instrumentation.SetSpanError(span, err)
				return nil, fmt.Errorf("calendar %s: %w", id, err)
			}
			info.Busy = append(info.Busy, interval)
		}
		infos = append(infos, info)
	}

	instrumentation.SetSpanSuccess(span)
	return infos, nil
}

// BusyIntervals returns the busy intervals of the primary calendar.
func (c *Client) BusyIntervals(ctx context.Context, timeMin, timeMax time.Time) ([]slots.Interval, error) {
	infos, err := c.QueryFreeBusy(ctx, timeMin, timeMax, []string{PrimaryCalendar})
	if err != nil {
		return nil, err
	}

	info := infos[0]
	if len(info.Errors) > 0 {
		return nil, &CalendarError{Calendar: info.Calendar, Reasons: info.Errors}
	}
	if info.Busy == nil {
		return []slots.Interval{}, nil
	}
	return info.Busy, nil
}

func parsePeriod(p *calendar.TimePeriod) (slots.Interval, error) {
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("invalid busy start %q: %w", p.Start, err)
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("invalid busy end %q: %w", p.End, err)
	}
	return slots.Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// isRetryable reports whether err is a rate limit or a server error.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}
