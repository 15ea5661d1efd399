// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsSent tracks datagrams emitted onto the transport, keyed
	// by the six wire-format variant names.
	DatagramsSent = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagrams",
			Name:      "sent_total",
			Help:      "Total number of datagrams sent by type",
		},
		[]string{"type"}, // RequestRegister, RegisterChallenge, RegisterChallenge2, ConnectionRejected, PushSchemas, SendMetrics
	)

	// DatagramsRejected tracks datagrams that failed parsing or
	// validation before reaching their handler, keyed by the §7 error
	// taxonomy reason.
	DatagramsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagrams",
			Name:      "rejected_total",
			Help:      "Total number of datagrams rejected before dispatch, by reason",
		},
		[]string{"reason"}, // invalid_signature, truncated_frame, invalid_crypto_mark, invalid_version, wrong_type, crypto_failure, malformed_payload, unknown_task, not_linked
	)

	// DatagramProcessingDuration tracks time spent deserializing and
	// validating an inbound datagram.
	DatagramProcessingDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datagrams",
			Name:      "processing_duration_seconds",
			Help:      "Datagram processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 205ms
		},
		[]string{"type"},
	)
)
