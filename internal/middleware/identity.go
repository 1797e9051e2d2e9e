package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gareci/bus-reservation/internal/model"
)

// Identity returns the authenticated caller, or false for anonymous
// requests.
func Identity(c echo.Context) (model.Identity, bool) {
	uid, ok := c.Get(ctxUserID).(uint64)
	if !ok || uid == 0 {
		return model.Identity{}, false
	}
	role, _ := c.Get(ctxRole).(string)
	return model.Identity{ID: uid, Staff: role == model.RoleStaff}, true
}

// userKey identifies the caller in Redis keys; anonymous callers share "anon".
func userKey(c echo.Context) string {
	if id, ok := Identity(c); ok {
		return strconv.FormatUint(id.ID, 10)
	}
	return "anon"
}
