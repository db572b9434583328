package server

import (
	"github.com/gin-gonic/gin"

	"github.com/edgellm/edgellm/api"
)

// abortWithError writes the structured error envelope with a matching status.
func abortWithError(c *gin.Context, code int, message string) {
	c.JSON(code, api.NewError(code, message))
}
