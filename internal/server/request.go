package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bloodbridge/internal/actor"
	reqdomain "github.com/smallbiznis/bloodbridge/internal/request/domain"
)

type openEmergencyRequest struct {
	BloodType string `json:"blood_type"`
	Component string `json:"component"`
	Units     int64  `json:"units"`
	RequestTo string `json:"request_to"`
	Notes     string `json:"notes"`
}

func (s *Server) openEmergency(c *gin.Context) {
	var body openEmergencyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.requestSvc.OpenEmergency(c.Request.Context(), reqdomain.OpenEmergencyRequest{
		BloodType: body.BloodType,
		Component: body.Component,
		Units:     body.Units,
		RequestTo: body.RequestTo,
		Notes:     body.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type openBloodDriveRequest struct {
	Location  string `json:"location"`
	DriveDate string `json:"drive_date"`
}

func (s *Server) openBloodDrive(c *gin.Context) {
	var body openBloodDriveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	driveDate, err := time.Parse("2006-01-02", strings.TrimSpace(body.DriveDate))
	if err != nil {
		AbortWithError(c, reqdomain.ErrInvalidDriveDate)
		return
	}

	result, err := s.requestSvc.OpenBloodDrive(c.Request.Context(), reqdomain.OpenBloodDriveRequest{
		Location:  body.Location,
		DriveDate: driveDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type bankAcceptRequest struct {
	Units *int64 `json:"units"`
}

func (s *Server) bankAccept(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var body bankAcceptRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.requestSvc.BankAccept(c.Request.Context(), reqdomain.BankAcceptRequest{
		RequestID: requestID,
		Units:     body.Units,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rejectRequest struct {
	Note string `json:"note"`
}

func (s *Server) bankReject(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var body rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.requestSvc.BankReject(c.Request.Context(), reqdomain.BankRejectRequest{
		RequestID: requestID,
		Note:      body.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) donorAccept(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	caller, ok := actor.FromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if s.donorLimiter.Enabled() && !s.donorLimiter.Allow(c.Request.Context(), caller.DonorID) {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitRejected(c.Request.Context())
		}
		AbortWithError(c, ErrTooManyRequests)
		return
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context())
	}

	result, err := s.requestSvc.DonorAccept(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) donorReject(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("id"))
	if requestID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var body rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.requestSvc.DonorReject(c.Request.Context(), requestID, body.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
