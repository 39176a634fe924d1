package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "eventlens/internal/db"
)

const (
	OwnerKey       = "owner"
	ApplicationKey = "application"
)

func SetOwner(ctx *fasthttp.RequestCtx, owner *dbpkg.User) {
	ctx.SetUserValue(OwnerKey, owner)
}

func OwnerFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	v := ctx.UserValue(OwnerKey)
	if v == nil {
		return nil, false
	}
	owner, ok := v.(*dbpkg.User)
	return owner, ok
}

func SetApplication(ctx *fasthttp.RequestCtx, app *dbpkg.Application) {
	ctx.SetUserValue(ApplicationKey, app)
}

func ApplicationFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.Application, bool) {
	v := ctx.UserValue(ApplicationKey)
	if v == nil {
		return nil, false
	}
	app, ok := v.(*dbpkg.Application)
	return app, ok
}
