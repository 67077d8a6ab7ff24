package handler

import "github.com/gin-gonic/gin"

// AdminNotImplemented backs every /admin/* and /auth/* route. The contract
// (path, method, auth requirement) matches spec.md §6; the CRUD/login logic
// behind it is out of scope (spec.md §1 Non-goals).
func AdminNotImplemented(c *gin.Context) {
	notImplemented(c)
}
