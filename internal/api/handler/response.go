package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/user/llm-proxy-go/internal/apierr"
)

// writeAppError renders an AppError in spec.md §7's error envelope shape.
func writeAppError(c *gin.Context, err *apierr.AppError) {
	c.JSON(err.HTTPStatus(), err.ToEnvelope())
}

// notImplemented renders the fixed 501 body the out-of-scope admin/auth
// route groups return — the contract/shape is present, the CRUD logic is
// not built (spec.md §1 Non-goals).
func notImplemented(c *gin.Context) {
	c.JSON(501, apierr.New(
		"this endpoint is not implemented",
		"not_implemented_error",
		"not_implemented",
		501,
		nil,
	).ToEnvelope())
}
