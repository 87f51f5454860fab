package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminHandler serves catalog administration and health endpoints.
type AdminHandler struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	reload  func() error
}

// NewAdminHandler constructs an AdminHandler. reload re-reads the
// configuration file and swaps the catalog.
func NewAdminHandler(db *gorm.DB, cat *catalog.Catalog, reload func() error) *AdminHandler {
	return &AdminHandler{db: db, catalog: cat, reload: reload}
}

// ReloadCatalog re-reads the model catalog from configuration. A failed
// reload leaves the previous catalog serving.
func (h *AdminHandler) ReloadCatalog(c *gin.Context) {
	if errReload := h.reload(); errReload != nil {
		log.WithError(errReload).Error("catalog reload failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errReload.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"models":    h.catalog.Len(),
		"loaded_at": h.catalog.LoadedAt().Format(time.RFC3339),
	})
}

// Catalog lists the active model descriptors.
func (h *AdminHandler) Catalog(c *gin.Context) {
	descriptors := h.catalog.All()
	out := make([]gin.H, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, gin.H{
			"id":                 d.ID,
			"provider":           d.Provider,
			"cost_per_1k_micros": d.CostPer1KMicros,
			"rate_limit_rpm":     d.RateLimitRPM,
			"quality_score":      d.QualityScore,
			"tags":               d.CapabilityTags,
			"priority":           d.PriorityRank,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// Healthz checks database connectivity and returns status.
func (h *AdminHandler) Healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
