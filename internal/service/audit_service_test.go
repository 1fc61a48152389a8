package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/events"
	"github.com/pwd-registry/support-desk/internal/observability"
)

func TestAuditServiceLogsAndCounts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, zap.New(core), metrics).RegisterHandlers()

	ctx := context.Background()
	actor := events.Actor{Type: domain.SenderTypeAdmin, ID: "acct-bob"}
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: "t-1",
		Actor:    actor,
		Payload:  events.TicketStatusChangedPayload{OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusInProgress, Implicit: true},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: "t-1",
		Actor:    actor,
		Payload:  events.TicketMessageAddedPayload{MessageID: "m-1", HasAttachment: true},
	}))

	entries := logs.FilterMessage("TicketStatusChanged").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t-1", fields["ticket_id"])
	assert.Equal(t, "in_progress", fields["new_status"])
	assert.Equal(t, true, fields["implicit"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicketEvents.WithLabelValues(string(events.EventTicketStatusChanged))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicketEvents.WithLabelValues(string(events.EventTicketMessageAdded))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Attachments))
}
