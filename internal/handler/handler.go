package handler

import (
	"net/http"
	"strconv"

	"carepackage/internal/lifecycle"
	"carepackage/internal/middleware"
	"carepackage/pkg/response"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, err error) {
	code, res := response.FromError(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, res)
}

// bindJSON binds the request body into req, answering 400 on failure.
// An empty body is accepted for requests whose fields are all optional.
func bindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// mustBindJSON is bindJSON for requests with required fields.
func mustBindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+name))
		return 0, false
	}
	return uint(v), true
}

func actor(c *gin.Context) (lifecycle.Actor, bool) {
	a, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User not found in context"))
	}
	return a, ok
}
