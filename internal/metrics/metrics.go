// Package metrics renders hub and HTTP counters in the Prometheus text
// exposition format.
package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/Tyrowin/ssechat/internal/hub"
)

// Metric family names exposed on /metrics.
const (
	SubscribersName       = "ssechat_subscribers"
	MessagesPublishedName = "ssechat_messages_published_total"
	DeliveriesName        = "ssechat_deliveries_total"
	DeliveryFailuresName  = "ssechat_delivery_failures_total"
	HTTPRequestsName      = "ssechat_http_requests_total"
)

const (
	routeLabel = "route"
	codeLabel  = "code"
)

// StatsSource is implemented by *hub.Hub.
type StatsSource interface {
	Stats() hub.Stats
}

type requestKey struct {
	route string
	code  int
}

// Collector gathers counters from the hub on demand and tracks HTTP requests
// observed by the router middleware.
type Collector struct {
	src StatsSource

	mu       sync.Mutex
	requests map[requestKey]uint64
}

// New returns a Collector reading hub counters from src.
func New(src StatsSource) *Collector {
	return &Collector{
		src:      src,
		requests: make(map[requestKey]uint64),
	}
}

// ObserveRequest counts one completed HTTP request.
func (c *Collector) ObserveRequest(route string, code int) {
	c.mu.Lock()
	c.requests[requestKey{route: route, code: code}]++
	c.mu.Unlock()
}

// Gather returns every metric family, sorted by name.
func (c *Collector) Gather() []*dto.MetricFamily {
	stats := c.src.Stats()

	families := []*dto.MetricFamily{
		gauge(SubscribersName, "Number of open streaming subscribers.", float64(stats.Subscribers)),
		counter(MessagesPublishedName, "Chat messages published to the hub.", float64(stats.Published)),
		counter(DeliveriesName, "Messages successfully delivered to subscribers.", float64(stats.Delivered)),
		counter(DeliveryFailuresName, "Deliveries that failed and dropped the subscriber.", float64(stats.Failed)),
	}
	// The text encoder rejects families without samples.
	if requests := c.requestFamily(); len(requests.Metric) > 0 {
		families = append(families, requests)
	}

	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	return families
}

// ServeHTTP writes the exposition for GET /metrics.
func (c *Collector) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range c.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

func (c *Collector) requestFamily() *dto.MetricFamily {
	c.mu.Lock()
	keys := make([]requestKey, 0, len(c.requests))
	values := make(map[requestKey]uint64, len(c.requests))
	for k, v := range c.requests {
		keys = append(keys, k)
		values[k] = v
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].route != keys[j].route {
			return keys[i].route < keys[j].route
		}
		return keys[i].code < keys[j].code
	})

	mf := &dto.MetricFamily{
		Name: ptr(HTTPRequestsName),
		Help: ptr("HTTP requests handled, by route template and status code."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: ptr(codeLabel), Value: ptr(strconv.Itoa(k.code))},
				{Name: ptr(routeLabel), Value: ptr(k.route)},
			},
			Counter: &dto.Counter{Value: ptr(float64(values[k]))},
		})
	}
	return mf
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func ptr[T any](v T) *T { return &v }
