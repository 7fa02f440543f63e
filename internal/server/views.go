package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
)

type requestViewResponse struct {
	*logdomain.RequestView
	DisplayStatus string `json:"display_status"`
}

func presentViews(views []*logdomain.RequestView) []requestViewResponse {
	out := make([]requestViewResponse, 0, len(views))
	for _, view := range views {
		out = append(out, requestViewResponse{
			RequestView:   view,
			DisplayStatus: view.DisplayStatus(),
		})
	}
	return out
}

func (s *Server) listRequests(c *gin.Context) {
	filter := logdomain.ListRequestFilter{
		Status:    c.Query("status"),
		RequestTo: c.Query("request_to"),
		BloodType: c.Query("blood_type"),
		Search:    c.Query("search"),
	}

	views, err := s.viewSvc.ListAll(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": presentViews(views)})
}

func (s *Server) listMyRequests(c *gin.Context) {
	views, err := s.viewSvc.ListMine(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": presentViews(views)})
}

func (s *Server) listBankQueue(c *gin.Context) {
	views, err := s.viewSvc.ListBankQueue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": presentViews(views)})
}

func (s *Server) listFulfilledHistory(c *gin.Context) {
	views, err := s.viewSvc.ListFulfilledHistory(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": presentViews(views)})
}

func (s *Server) listDonorVisible(c *gin.Context) {
	views, err := s.viewSvc.ListDonorVisible(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": presentViews(views)})
}
