package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/auth"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// actorFromRequest resolves the authenticated principal's ID for audit
// attribution. Writes a 401 and returns false when there is no principal.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(principal.ID)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query parameters, leaving clamping to the
// service layer
func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
