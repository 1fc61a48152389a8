package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 20*time.Millisecond)
	m.RecordError("/tickets/:id", "DELETE", apperrors.CodeInvalidState)
	m.RecordTicketEvent("ticket_created")
	m.RecordAttachment()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/tickets", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("/tickets/:id", "DELETE", apperrors.CodeInvalidState)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicketEvents.WithLabelValues("ticket_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attachments))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordTicketEvent("x")
		m.RecordAttachment()
	})
}

func TestRequestLoggerRecordsErrorStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.ToDomainError(err).HTTPStatus).SendString(err.Error())
		},
	})
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error {
		return apperrors.NewNotFound("Ticket")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/tickets/abc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/tickets/:id", "GET", "404")))
}
