package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bloodbridge/internal/actor"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
)

type adjustInventoryRequest struct {
	BloodType string `json:"blood_type"`
	Component string `json:"component"`
	Action    string `json:"action"`
	Units     int64  `json:"units"`
}

// adjustInventory appends a stock version for the calling bank. The
// org comes from the actor, never from the body.
func (s *Server) adjustInventory(c *gin.Context) {
	caller, ok := actor.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body adjustInventoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.inventorySvc.Adjust(c.Request.Context(), invdomain.AdjustRequest{
		OrgID:     caller.OrgID,
		BloodType: body.BloodType,
		Component: body.Component,
		Action:    body.Action,
		Units:     body.Units,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listInventory(c *gin.Context) {
	filter := invdomain.ListFilter{
		OrgID:     strings.TrimSpace(c.Query("org_id")),
		BloodType: c.Query("blood_type"),
		Component: c.Query("component"),
	}

	stocks, err := s.inventorySvc.ListCurrent(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": stocks})
}
