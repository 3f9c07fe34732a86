package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) checkout(c *gin.Context) {
	if s.deps.Billing == nil {
		respondError(c, errNotEnabled)
		return
	}
	sessionURL, err := s.deps.Billing.Checkout(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": sessionURL})
}

func (s *Server) portal(c *gin.Context) {
	if s.deps.Billing == nil {
		respondError(c, errNotEnabled)
		return
	}
	sessionURL, err := s.deps.Billing.Portal(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": sessionURL})
}
