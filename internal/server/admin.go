package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// Admin retry endpoints return failure detail inline so an operator
// sees immediately why a manual retry did not go through, unlike the
// scheduled jobs which only log.

func (s *Server) handleRetryDebitBatch(c *gin.Context) {
	restaurantID, ok := parseID(c.Param("restaurant_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_restaurant_id"})
		return
	}
	businessDate := strings.TrimSpace(c.Param("business_date"))
	if _, err := time.Parse("2006-01-02", businessDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_business_date"})
		return
	}

	if err := s.debitSvc.RetryBatch(c.Request.Context(), restaurantID, businessDate); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRetrySettlementRow(c *gin.Context) {
	rowID, ok := parseID(c.Param("settlement_row_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settlement_row_id"})
		return
	}

	if err := s.payoutSvc.RetrySettlementRow(c.Request.Context(), rowID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseID(raw string) (snowflake.ID, bool) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}
