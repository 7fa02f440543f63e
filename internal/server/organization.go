package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
)

func (s *Server) listOrganizations(c *gin.Context) {
	orgType := strings.TrimSpace(c.Query("org_type"))
	switch orgType {
	case "", orgdomain.OrgTypeHospital, orgdomain.OrgTypeBloodBank:
	default:
		AbortWithError(c, invalidRequestError())
		return
	}

	orgs, err := s.orgRepo.List(c.Request.Context(), s.db, orgdomain.ListOrganizationFilter{OrgType: orgType})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}
