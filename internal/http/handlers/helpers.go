package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/valyala/fasthttp"

	dbpkg "eventlens/internal/db"
	"eventlens/internal/errs"
	httpctx "eventlens/internal/http/ctx"
)

// MustOwner returns the authenticated owner from context, or sends 401
// and returns (nil, false).
func MustOwner(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	owner, ok := httpctx.OwnerFromCtx(ctx)
	if !ok || owner == nil {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	return owner, true
}

// MustApplication returns the authenticated application from context,
// or sends 401 and returns (nil, false).
func MustApplication(ctx *fasthttp.RequestCtx) (*dbpkg.Application, bool) {
	app, ok := httpctx.ApplicationFromCtx(ctx)
	if !ok || app == nil {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
		return nil, false
	}
	return app, true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("failed to marshal response: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("internal error")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

// writeError translates the core error kinds into status codes.
// Anything unrecognized is logged and answered as a 500 without
// leaking detail.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthenticated):
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString("unauthorized")
	case errors.Is(err, errs.ErrNotFound):
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("not found")
	case errors.Is(err, errs.ErrForbidden):
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("forbidden")
	case errors.Is(err, errs.ErrAlreadyRevoked):
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("api key already revoked")
	default:
		log.Printf("request failed: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("internal error")
	}
}
