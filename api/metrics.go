package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "studyboard/api"
	requestEventName   = "board.request"
	requestEventDomain = "studyboard"
)

// requestMetrics collects timings of a single board request and reports them as
// one log entry and one span.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	route  string
	start  time.Time

	authDuration  time.Duration
	storeDuration time.Duration
	tasks         int
	errorStage    string
	err           error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{logger: logger, span: span, route: route, start: time.Now()}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration)  { m.authDuration = d }
func (m *requestMetrics) ObserveStore(d time.Duration) { m.storeDuration = d }

// SetTasks records how many tasks the response carried.
func (m *requestMetrics) SetTasks(n int) {
	if n < 0 {
		n = 0
	}
	m.tasks = n
}

// Fail records the failing stage of the request.
func (m *requestMetrics) Fail(stage string, err error) {
	m.errorStage = stage
	m.err = err
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}
	total := time.Since(m.start)
	severity, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("studyboard.total_ms", durationToMillis(total)),
		attribute.Int("studyboard.tasks", m.tasks),
	}
	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(total),
		"tasks":    m.tasks,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
		attrs = append(attrs, attribute.Float64("studyboard.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.storeDuration > 0 {
		fields["store_ms"] = durationToMillis(m.storeDuration)
		attrs = append(attrs, attribute.Float64("studyboard.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
		attrs = append(attrs, attribute.String("studyboard.error_stage", m.errorStage))
	}
	if err != nil {
		fields["error"] = err.Error()
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(requestEventName, trace.WithAttributes(append(attrs,
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severity),
		)...))
		if status >= http.StatusInternalServerError || (status == 0 && err != nil) {
			msg := http.StatusText(status)
			if err != nil {
				msg = err.Error()
			}
			m.span.SetStatus(codes.Error, msg)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields["severity_text"] = severity
	fields["severity_number"] = severityNumber
	entry := m.logger.WithFields(fields)
	switch severity {
	case "ERROR":
		entry.Error(requestEventName)
	case "WARN":
		entry.Warn(requestEventName)
	default:
		entry.Info(requestEventName)
	}
}

// severityForStatus follows the OpenTelemetry severity numbers for INFO/WARN/ERROR.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError, status == 0 && err != nil:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	}
	return "INFO", 9
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// observed wraps a handler with request metrics for route.
func observed(logger *log.Logger, route string, h func(c echo.Context, m *requestMetrics) error) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		m, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, route)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			m.Log(c.Response().Status, err)
		}()
		return h(c, m)
	}
}
