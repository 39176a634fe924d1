package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"eventlens/internal/keys"
)

type applicationView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterApplication creates an application and mints its first API
// key. The plaintext key appears in this response and nowhere else.
func RegisterApplication(manager *keys.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		owner, ok := MustOwner(ctx)
		if !ok {
			return
		}

		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("name required")
			return
		}

		app, plaintext, _, err := manager.RegisterApplication(ctx, req.Name, owner.ID)
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeJSON(ctx, fasthttp.StatusCreated, struct {
			Application applicationView `json:"application"`
			APIKey      string          `json:"apiKey"`
		}{
			Application: applicationView{ID: app.ID, Name: app.Name, CreatedAt: app.CreatedAt},
			APIKey:      plaintext,
		})
	}
}

// ListAPIKeys returns key metadata for one owned application, newest
// first. Hashes and plaintext never appear here.
func ListAPIKeys(manager *keys.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		owner, ok := MustOwner(ctx)
		if !ok {
			return
		}
		applicationID, _ := ctx.UserValue("id").(string)
		if applicationID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("application id required")
			return
		}

		metadata, err := manager.ListKeyMetadata(ctx, applicationID, owner.ID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, struct {
			Keys []keys.KeyMetadata `json:"keys"`
		}{Keys: metadata})
	}
}

// RevokeAPIKey permanently disables a single key owned by the caller.
func RevokeAPIKey(manager *keys.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		owner, ok := MustOwner(ctx)
		if !ok {
			return
		}

		var req struct {
			APIKeyID string `json:"apiKeyId"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.APIKeyID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("apiKeyId required")
			return
		}

		key, err := manager.Revoke(ctx, req.APIKeyID, owner.ID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, keys.KeyMetadata{
			ID:         key.ID,
			KeyPrefix:  key.KeyPrefix,
			CreatedAt:  key.CreatedAt,
			ExpiresAt:  key.ExpiresAt,
			RevokedAt:  key.RevokedAt,
			LastUsedAt: key.LastUsedAt,
		})
	}
}

// RegenerateAPIKey rotates an application's credentials: every
// unrevoked key is revoked and exactly one new key is issued, in the
// same transaction. The new plaintext appears in this response and
// nowhere else.
func RegenerateAPIKey(manager *keys.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		owner, ok := MustOwner(ctx)
		if !ok {
			return
		}
		applicationID, _ := ctx.UserValue("id").(string)
		if applicationID == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("application id required")
			return
		}

		plaintext, key, err := manager.Regenerate(ctx, applicationID, owner.ID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, struct {
			APIKey    string    `json:"apiKey"`
			KeyPrefix string    `json:"keyPrefix"`
			ExpiresAt time.Time `json:"expiresAt"`
		}{
			APIKey:    plaintext,
			KeyPrefix: key.KeyPrefix,
			ExpiresAt: key.ExpiresAt,
		})
	}
}
