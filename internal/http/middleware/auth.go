package middleware

import (
	"bytes"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "eventlens/internal/db"
	"eventlens/internal/errs"
	httpctx "eventlens/internal/http/ctx"
	"eventlens/internal/keys"
	"eventlens/internal/token"
)

const bearerPrefix = "Bearer "

func bearerToken(ctx *fasthttp.RequestCtx) (string, bool) {
	auth := ctx.Request.Header.Peek("Authorization")
	if !bytes.HasPrefix(auth, []byte(bearerPrefix)) {
		return "", false
	}
	tok := strings.TrimSpace(string(auth[len(bearerPrefix):]))
	return tok, tok != ""
}

// BearerAuth validates client API keys through the key manager and
// attaches the owning application to the request. All credential
// failures answer with the same 401.
func BearerAuth(manager *keys.Manager) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			secret, ok := bearerToken(ctx)
			if !ok {
				observeValidation("unauthenticated")
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid API key")
				return
			}

			app, err := manager.ValidateKey(ctx, secret)
			if err != nil {
				if errors.Is(err, errs.ErrUnauthenticated) {
					observeValidation("unauthenticated")
					ctx.SetStatusCode(fasthttp.StatusUnauthorized)
					ctx.SetBodyString("invalid API key")
					return
				}
				observeValidation("error")
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("internal error")
				return
			}

			observeValidation("ok")
			httpctx.SetApplication(ctx, app)
			next(ctx)
		}
	}
}

// OwnerAuth validates owner session tokens and attaches the owner's
// user record to the request.
func OwnerAuth(db *gorm.DB, tokens *token.Manager) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			sessionToken, ok := bearerToken(ctx)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing session token")
				return
			}

			claims, err := tokens.Validate(sessionToken)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid session token")
				return
			}

			var owner dbpkg.User
			if err := db.First(&owner, "id = ?", claims.Subject).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.SetStatusCode(fasthttp.StatusUnauthorized)
					ctx.SetBodyString("unknown owner")
					return
				}
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("database error")
				return
			}

			httpctx.SetOwner(ctx, &owner)
			next(ctx)
		}
	}
}
