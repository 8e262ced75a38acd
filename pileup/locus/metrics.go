// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package locus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports traversal counters.  A nil *Metrics discards updates.
type Metrics struct {
	readsSeen        prometheus.Counter
	readsDownsampled prometheus.Counter
	readsEvicted     prometheus.Counter
	loci             *prometheus.CounterVec
	overflows        prometheus.Counter
}

// NewMetrics creates the traversal counters and registers them with reg.  reg
// may be nil, in which case the counters are not registered anywhere.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		readsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biotraverse",
			Subsystem: "locus",
			Name:      "reads_seen_total",
			Help:      "Reads pulled from the input.",
		}),
		readsDownsampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biotraverse",
			Subsystem: "locus",
			Name:      "reads_downsampled_total",
			Help:      "Reads dropped by per-sample reservoir sampling.",
		}),
		readsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biotraverse",
			Subsystem: "locus",
			Name:      "reads_evicted_total",
			Help:      "Buffered reads evicted to make room for new ones.",
		}),
		loci: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biotraverse",
			Subsystem: "locus",
			Name:      "loci_emitted_total",
			Help:      "Alignment contexts emitted, by kind.",
		}, []string{"kind"}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biotraverse",
			Subsystem: "locus",
			Name:      "overflows_total",
			Help:      "Loci where more reads arrived than could be buffered.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.readsSeen, m.readsDownsampled, m.readsEvicted, m.loci, m.overflows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) addReadsSeen(n int) {
	if m != nil {
		m.readsSeen.Add(float64(n))
	}
}

func (m *Metrics) addDownsampled(n int) {
	if m != nil && n > 0 {
		m.readsDownsampled.Add(float64(n))
	}
}

func (m *Metrics) addEvicted(n int) {
	if m != nil && n > 0 {
		m.readsEvicted.Add(float64(n))
	}
}

func (m *Metrics) incLoci(extended bool) {
	if m == nil {
		return
	}
	kind := "normal"
	if extended {
		kind = "extended"
	}
	m.loci.WithLabelValues(kind).Inc()
}

func (m *Metrics) incOverflow() {
	if m != nil {
		m.overflows.Inc()
	}
}
