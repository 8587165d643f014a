package middleware

// identity.go holds the context keys JWTAuth writes and the helpers that
// read them back.  Handlers go through Principal so they never type
// assert context values themselves.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/model"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Principal returns the authenticated caller.  ok is false on routes not
// wrapped by JWTAuth.
func Principal(c echo.Context) (model.Principal, bool) {
	uid, ok := c.Get(ctxUserID).(uint64)
	if !ok || uid == 0 {
		return model.Principal{}, false
	}
	role, _ := c.Get(ctxRole).(string)
	return model.Principal{UserID: uid, Role: role}, true
}

// userKey identifies the caller for rate limiting; "anon" when the
// request is unauthenticated.
func userKey(c echo.Context) string {
	if p, ok := Principal(c); ok {
		return strconv.FormatUint(p.UserID, 10)
	}
	return "anon"
}
