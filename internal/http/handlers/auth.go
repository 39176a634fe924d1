package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "eventlens/internal/db"
	"eventlens/internal/token"
)

type loginRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type loginResponse struct {
	AccessToken string    `json:"accessToken"`
	User        ownerView `json:"user"`
}

type ownerView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Login exchanges a known owner identity for a signed session token,
// creating the owner account on first sight. Upstream identity
// verification (the OAuth dance) happens before this endpoint.
func Login(db *gorm.DB, tokens *token.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req loginRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("email required")
			return
		}
		if req.Subject == "" {
			req.Subject = req.Email
		}

		var owner dbpkg.User
		err := db.Where("email = ?", req.Email).First(&owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			owner = dbpkg.User{Email: req.Email, Subject: req.Subject, Name: req.Name}
			err = db.Create(&owner).Error
		}
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}

		accessToken, err := tokens.Generate(owner.ID, owner.Email)
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeJSON(ctx, fasthttp.StatusOK, loginResponse{
			AccessToken: accessToken,
			User:        ownerView{ID: owner.ID, Email: owner.Email, Name: owner.Name},
		})
	}
}
