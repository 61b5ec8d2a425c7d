package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/shared/apperr"
)

// Healthz pings the database.
func Healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			_ = c.Error(apperr.Wrap(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
