package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_telemetry_messages_total",
		Help: "Telemetry payloads received on the data topic.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_telemetry_decode_errors_total",
		Help: "Telemetry payloads dropped because they could not be decoded.",
	})
	CommandsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_commands_published_total",
		Help: "Commands handed to the transport, by command and origin.",
	}, []string{"command", "origin"})
	CommandsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_commands_merged_total",
		Help: "Commands merged into an identical command inside the de-duplication window.",
	})
	CommandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_commands_dropped_total",
		Help: "Commands dropped before reaching the broker, by reason.",
	}, []string{"reason"})
	AutomationFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_automation_rules_fired_total",
		Help: "Automation rule edges that produced a command.",
	}, []string{"rule"})
	LinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_link_connected",
		Help: "1 while the broker link is connected.",
	})
	RecordsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_records_stored_total",
		Help: "Reports persisted through the tracker endpoint.",
	})
	ValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_validation_errors_total",
		Help: "Tracker endpoint requests rejected for missing or invalid fields.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
