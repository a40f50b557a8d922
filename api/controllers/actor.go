package controllers

import (
	"net/http"

	"github.com/ssr0016/next-rental-eq-marketplace/api/middleware"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

func requireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return actor, nil
}
