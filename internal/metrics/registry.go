// Package metrics exposes Prometheus counters and histograms for the
// cookie challenge, handshake, session, and scheduler subsystems. Every
// metric is registered against a dedicated Registry rather than the
// default global one, so embedding this module in a larger process never
// collides with that process's own metric names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// namespace prefixes every metric name (b4ae_<subsystem>_<name>).
const namespace = "b4ae"

// Registry is the collector all of this package's metrics register
// against. Handler/StartServer serve it; embedding processes can also
// register it into their own multi-registry setup.
var Registry = prometheus.NewRegistry()
