package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InfoSource reports the values exported by InfoCollector at scrape time.
type InfoSource interface {
	NodeID() string
	Mode() string
	StoreAddress() string
}

// InfoCollector exports a constant-1 gauge labelled with the node's
// identity, mode and store address. Labels are read on every scrape,
// so the store address appears once attachment succeeds.
type InfoCollector struct {
	source InfoSource
	desc   *prometheus.Desc
}

// NewInfoCollector creates a collector over source.
func NewInfoCollector(source InfoSource) *InfoCollector {
	return &InfoCollector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "info"),
			"Node identity and attached store",
			[]string{"node_id", "mode", "store_address"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *InfoCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *InfoCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.desc,
		prometheus.GaugeValue,
		1,
		c.source.NodeID(),
		c.source.Mode(),
		c.source.StoreAddress(),
	)
}

// Register adds c to r. A nil registry is ignored.
func (c *InfoCollector) Register(r *Registry) error {
	if r == nil {
		return nil
	}
	return r.reg.Register(c)
}
