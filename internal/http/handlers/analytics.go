package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"eventlens/internal/analytics"
)

type collectRequest struct {
	Event      string         `json:"event"`
	URL        string         `json:"url,omitempty"`
	Referrer   string         `json:"referrer,omitempty"`
	DeviceType string         `json:"deviceType"`
	UserID     string         `json:"userId,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// CollectEvent ingests one analytics event for the authenticated
// application. Storage failures surface as 500s; nothing is dropped
// silently.
func CollectEvent(engine *analytics.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		app, ok := MustApplication(ctx)
		if !ok {
			return
		}

		var req collectRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if req.Event == "" || req.DeviceType == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("event and deviceType required")
			return
		}
		if req.IPAddress == "" {
			req.IPAddress = ctx.RemoteIP().String()
		}

		event, err := engine.CollectEvent(ctx, app, analytics.CollectInput{
			EventName:    req.Event,
			URL:          req.URL,
			Referrer:     req.Referrer,
			DeviceType:   req.DeviceType,
			ClientUserID: req.UserID,
			IPAddress:    req.IPAddress,
			Metadata:     req.Metadata,
			Timestamp:    req.Timestamp,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}

		observeIngest(app.ID, event.EventName, event.DeviceType)
		writeJSON(ctx, fasthttp.StatusCreated, struct {
			ID        string    `json:"id"`
			Event     string    `json:"event"`
			Timestamp time.Time `json:"timestamp"`
		}{ID: event.ID, Event: event.EventName, Timestamp: event.Timestamp})
	}
}

// EventSummary answers aggregate queries for one event name, scoped
// to the authenticated application. Results may lag ingestion by up
// to the cache TTL.
func EventSummary(engine *analytics.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		app, ok := MustApplication(ctx)
		if !ok {
			return
		}

		eventName := string(ctx.QueryArgs().Peek("event"))
		if eventName == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("event query parameter required")
			return
		}
		startDate := string(ctx.QueryArgs().Peek("startDate"))
		endDate := string(ctx.QueryArgs().Peek("endDate"))
		if _, err := analytics.ParseDateBound(startDate, false); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid startDate")
			return
		}
		if _, err := analytics.ParseDateBound(endDate, true); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid endDate")
			return
		}

		summary, err := engine.GetEventSummary(ctx, app, eventName, startDate, endDate)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, summary)
	}
}

// UserStats answers per-user statistics queries, scoped to the
// authenticated application.
func UserStats(engine *analytics.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		app, ok := MustApplication(ctx)
		if !ok {
			return
		}

		userID := string(ctx.QueryArgs().Peek("userId"))
		if userID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("userId query parameter required")
			return
		}

		stats, err := engine.GetUserStats(ctx, app, userID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, stats)
	}
}
