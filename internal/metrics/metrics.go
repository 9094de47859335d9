// Package metrics exposes Prometheus instrumentation for the auction
// lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	bidsAccepted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "lifecycle",
		Name:      "bids_accepted_total",
		Help:      "Total number of bids that passed validation and committed",
	})

	bidConflicts = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "lifecycle",
		Name:      "bid_conflicts_total",
		Help:      "Total number of revision-guard failures during bid placement",
	})

	bidRetriesExhausted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "lifecycle",
		Name:      "bid_retries_exhausted_total",
		Help:      "Total number of bids rejected after the retry bound",
	})

	auctionsFinalized = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "lifecycle",
		Name:      "auctions_finalized_total",
		Help:      "Total number of auctions transitioned out of active",
	}, []string{"outcome"})

	sweepErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "scheduler",
		Name:      "sweep_errors_total",
		Help:      "Total number of failed reconciliation sweep iterations",
	})

	broadcastsDelivered = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "hub",
		Name:      "broadcasts_delivered_total",
		Help:      "Total number of events delivered to subscriber channels",
	})

	broadcastsDropped = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Subsystem: "hub",
		Name:      "broadcasts_dropped_total",
		Help:      "Total number of events dropped on slow or dead subscribers",
	})
)

// BidAccepted counts a committed bid
func BidAccepted() { bidsAccepted.Inc() }

// BidConflict counts a CAS retry during bid placement
func BidConflict() { bidConflicts.Inc() }

// BidRetriesExhausted counts a bid surfaced as a concurrent conflict
func BidRetriesExhausted() { bidRetriesExhausted.Inc() }

// AuctionFinalized counts a terminal transition; outcome is "won", "no_bids"
// or "cancelled"
func AuctionFinalized(outcome string) { auctionsFinalized.WithLabelValues(outcome).Inc() }

// SweepError counts a failed sweep iteration
func SweepError() { sweepErrors.Inc() }

// BroadcastDelivered counts one event handed to one subscriber
func BroadcastDelivered() { broadcastsDelivered.Inc() }

// BroadcastDropped counts one event dropped for one subscriber
func BroadcastDropped() { broadcastsDropped.Inc() }

// Handler returns the HTTP handler serving the metrics registry
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
