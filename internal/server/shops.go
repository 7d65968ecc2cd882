package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
)

const contractGIDPrefix = "gid://shopify/SubscriptionContract/"

func (s *Server) ListShops(c *gin.Context) {
	shops, err := s.shopSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": shops})
}

// InstallShop stores the shop's credentials and starts importing its contracts.
func (s *Server) InstallShop(c *gin.Context) {
	var req shopdomain.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.shopSvc.Install(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	task := s.syncSvc.Start(account.Shop)

	c.JSON(http.StatusAccepted, gin.H{"data": account, "sync": task.Status()})
}

func (s *Server) UninstallShop(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	if err := s.shopSvc.Uninstall(c.Request.Context(), shop); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) StartSync(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	if _, err := s.shopSvc.Get(c.Request.Context(), shop); err != nil {
		AbortWithError(c, err)
		return
	}
	task := s.syncSvc.Start(shop)
	c.JSON(http.StatusAccepted, gin.H{"data": task.Status()})
}

func (s *Server) GetSyncStatus(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	task, found := s.syncSvc.Latest(shop)
	if !found {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task.Status()})
}

func (s *Server) ListContracts(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contractSvc.List(c.Request.Context(), contractdomain.ListContractsRequest{
		Shop:       shop,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetContract(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	contract, err := s.contractSvc.Get(c.Request.Context(), shop, contractGID(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contract})
}

// RunSweep requests today's charges for one shop outside the schedule.
func (s *Server) RunSweep(c *gin.Context) {
	shop, ok := s.shopParam(c)
	if !ok {
		return
	}
	result, err := s.cycleSvc.Sweep(c.Request.Context(), shop)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) shopParam(c *gin.Context) (string, bool) {
	shop, err := shopdomain.NormalizeShop(c.Param("shop"))
	if err != nil {
		AbortWithError(c, err)
		return "", false
	}
	return shop, true
}

// contractGID accepts the numeric tail of a contract id, since the full id does not fit a
// path segment.
func contractGID(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "gid://") {
		return raw
	}
	return contractGIDPrefix + raw
}
