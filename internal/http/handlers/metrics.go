package handlers

import (
	"bytes"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"eventlens/internal/keys"
)

var eventsIngested *prometheus.CounterVec

// InitPrometheusMetrics registers the ingestion counters. Call once at
// startup, before serving traffic.
func InitPrometheusMetrics() {
	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventlens",
			Name:      "events_ingested_total",
			Help:      "Total number of ingested analytics events.",
		},
		[]string{"application", "event", "device"},
	)
	prometheus.MustRegister(eventsIngested)
}

// RequestLogger logs one line per handled request.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func observeIngest(applicationID, eventName, deviceType string) {
	if eventsIngested == nil {
		return
	}
	eventsIngested.WithLabelValues(applicationID, eventName, deviceType).Inc()
}

func encodeFamilies(ctx *fasthttp.RequestCtx, families []*dto.MetricFamily) {
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to encode metrics")
			return
		}
	}
	ctx.SetContentType(string(expfmt.FmtText))
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(buf.Bytes())
}

// Metrics exposes the full prometheus registry for operational
// scraping.
func Metrics() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}
		encodeFamilies(ctx, families)
	}
}

// ApplicationMetrics exposes only the metric series labelled with the
// calling application. The API key travels as a query parameter so
// stock scrapers can be pointed at it directly.
func ApplicationMetrics(manager *keys.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		secret := string(ctx.QueryArgs().Peek("api-key"))
		if secret == "" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("missing api-key query parameter")
			return
		}
		app, err := manager.ValidateKey(ctx, secret)
		if err != nil {
			writeError(ctx, err)
			return
		}

		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(families))
		for _, mf := range families {
			hasApplicationLabel := false
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "application" {
						hasApplicationLabel = true
						break
					}
				}
				if hasApplicationLabel {
					break
				}
			}

			if !hasApplicationLabel {
				filtered = append(filtered, mf)
				continue
			}

			var kept []*dto.Metric
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "application" && l.GetValue() == app.ID {
						kept = append(kept, m)
						break
					}
				}
			}
			if len(kept) == 0 {
				continue
			}
			filtered = append(filtered, &dto.MetricFamily{
				Name:   mf.Name,
				Help:   mf.Help,
				Type:   mf.Type,
				Metric: kept,
			})
		}

		encodeFamilies(ctx, filtered)
	}
}
