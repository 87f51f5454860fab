package http

import (
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	"github.com/router-for-me/CreditRouter/internal/http/handlers"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/router"
	"gorm.io/gorm"
)

// Deps holds everything the API surface needs.
type Deps struct {
	DB      *gorm.DB
	Router  *router.Router
	Ledger  *ledger.Ledger
	Catalog *catalog.Catalog

	// AdminAPIKeyHash guards /admin routes; empty disables them.
	AdminAPIKeyHash string
	// ReloadCatalog re-reads the catalog from configuration.
	ReloadCatalog func() error
}

// NewEngine builds the gin engine with all routes registered.
func NewEngine(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	routeHandler := handlers.NewRouteHandler(deps.Router)
	accountsHandler := handlers.NewAccountsHandler(deps.Ledger)
	adminHandler := handlers.NewAdminHandler(deps.DB, deps.Catalog, deps.ReloadCatalog)

	engine.GET("/healthz", adminHandler.Healthz)

	v1 := engine.Group("/v1")
	{
		v1.POST("/route", routeHandler.Route)
		v1.POST("/estimate", routeHandler.Estimate)
		v1.GET("/accounts/:id/balance", accountsHandler.Balance)
		v1.GET("/accounts/:id/transactions", accountsHandler.Transactions)
	}

	admin := engine.Group("/admin", AdminAuthMiddleware(deps.AdminAPIKeyHash))
	{
		admin.POST("/accounts/:id/grant", accountsHandler.Grant)
		admin.POST("/catalog/reload", adminHandler.ReloadCatalog)
		admin.GET("/catalog", adminHandler.Catalog)
	}

	return engine
}
