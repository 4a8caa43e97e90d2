// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	spills        prometheus.Counter
	spilledRows   prometheus.Counter
	externalTrims prometheus.Counter
	storesClosed  prometheus.Counter
}

// NewMetrics creates the result counters on reg. A nil reg gives
// counters that are not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		spills: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rowbuf",
			Subsystem: "result",
			Name:      "spills_total",
			Help:      "Number of results moved from memory to a temporary store.",
		}),
		spilledRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rowbuf",
			Subsystem: "result",
			Name:      "spilled_rows_total",
			Help:      "Number of rows written to temporary stores.",
		}),
		externalTrims: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rowbuf",
			Subsystem: "result",
			Name:      "external_trims_total",
			Help:      "Number of temporary stores rewritten to apply OFFSET and LIMIT.",
		}),
		storesClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rowbuf",
			Subsystem: "result",
			Name:      "stores_closed_total",
			Help:      "Number of temporary stores released.",
		}),
	}
}

var defaultMetrics = NewMetrics(nil)
