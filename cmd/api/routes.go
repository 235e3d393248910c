package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/inventory-ledger/internal/application"
	"github.com/wms-platform/inventory-ledger/pkg/api"
	"github.com/wms-platform/inventory-ledger/pkg/contracts/openapi"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/idempotency"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/metrics"
	"github.com/wms-platform/inventory-ledger/pkg/middleware"
)

type services struct {
	Ledger    *application.LedgerService
	Queries   *application.QueryService
	Locations *application.LocationService
}

type routerConfig struct {
	ServiceName string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics

	// Idempotency is nil when no key store is configured
	Idempotency *idempotency.Config
	// Contract is nil unless OPENAPI_VALIDATION is on
	Contract *openapi.Validator

	Readiness map[string]func(ctx context.Context) error
}

func newRouter(svc services, config routerConfig) *gin.Engine {
	logger := config.Logger

	router := gin.New()
	middlewareConfig := middleware.DefaultConfig(config.ServiceName, logger, config.Metrics)
	middleware.Setup(router, middlewareConfig)
	if config.Contract != nil {
		router.Use(middleware.ContractValidation(config.Contract, logger))
	}

	router.GET("/health", middleware.HealthCheck(config.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(config.ServiceName, config.Readiness))
	if config.Metrics != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(config.Metrics))
	}

	v1 := router.Group("/api/v1")

	inventory := v1.Group("/inventory")
	{
		mutations := inventory.Group("")
		if config.Idempotency != nil {
			mutations.Use(idempotency.Middleware(config.Idempotency))
		}
		mutations.POST("/reserve", reserveHandler(svc.Ledger, logger))
		mutations.POST("/release", releaseHandler(svc.Ledger, logger))
		mutations.POST("/receive", receiveHandler(svc.Ledger, logger))
		mutations.POST("/ship", shipHandler(svc.Ledger, logger))
		mutations.POST("/transfer", transferHandler(svc.Ledger, logger))
		mutations.POST("/adjust", adjustHandler(svc.Ledger, logger))
		mutations.PUT("/stock/:variantId/:locationId/minimum", setMinimumStockHandler(svc.Ledger, logger))

		inventory.GET("/stock/:variantId", getStockHandler(svc.Queries, logger))
		inventory.GET("/stock/:variantId/available", getAvailableStockHandler(svc.Queries, logger))
		inventory.GET("/low-stock", getLowStockHandler(svc.Queries, logger))
		inventory.GET("/movements/:variantId", getMovementHistoryHandler(svc.Queries, logger))
	}

	locations := v1.Group("/locations")
	{
		locations.GET("", listLocationsHandler(svc.Locations, logger))
		locations.GET("/:id", getLocationHandler(svc.Locations, logger))
		locations.PUT("/:id", upsertLocationHandler(svc.Locations, logger))
	}

	return router
}

// ledgerHandler binds the body into a command, runs op and writes the LedgerResultDTO
func ledgerHandler[C any](logger *logging.Logger, op func(ctx context.Context, cmd C) (*application.LedgerResultDTO, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var cmd C
		if appErr := api.BindJSON(c, &cmd); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := op(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func reserveHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Reserve)
}

func releaseHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Release)
}

func receiveHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Receive)
}

func shipHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Ship)
}

func transferHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Transfer)
}

func adjustHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return ledgerHandler(logger, service.Adjust)
}

func setMinimumStockHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			Minimum *int `json:"minimum"`
		}
		if appErr := api.BindJSON(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		record, err := service.SetMinimumStock(c.Request.Context(), application.SetMinimumStockCommand{
			VariantID:  c.Param("variantId"),
			LocationID: c.Param("locationId"),
			Minimum:    req.Minimum,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func getStockHandler(service *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := service.GetStock(c.Request.Context(), application.GetStockQuery{
			VariantID:  c.Param("variantId"),
			LocationID: c.Query("locationId"),
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger).RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, records)
	}
}

func getAvailableStockHandler(service *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		available, err := service.GetTotalAvailableStock(c.Request.Context(), c.Param("variantId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger).RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, available)
	}
}

func getLowStockHandler(service *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		query := application.GetLowStockQuery{Page: api.ParsePagination(c)}
		if raw := c.Query("threshold"); raw != "" {
			threshold, err := strconv.Atoi(raw)
			if err != nil {
				responder.RespondWithAppError(errors.ErrValidationWithFields("validation failed", map[string]string{
					"threshold": "must be an integer",
				}))
				return
			}
			query.Threshold = &threshold
		}

		page, err := service.GetLowStock(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

func getMovementHistoryHandler(service *application.QueryService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := service.GetMovementHistory(c.Request.Context(), application.GetMovementHistoryQuery{
			VariantID: c.Param("variantId"),
			Page:      api.ParsePagination(c),
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger).RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

func listLocationsHandler(service *application.LocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		locations, err := service.ListLocations(c.Request.Context())
		if err != nil {
			middleware.NewErrorResponder(c, logger).RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, locations)
	}
}

func getLocationHandler(service *application.LocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		location, err := service.GetLocation(c.Request.Context(), c.Param("id"))
		if err != nil {
			middleware.NewErrorResponder(c, logger).RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, location)
	}
}

func upsertLocationHandler(service *application.LocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		var req struct {
			Name   string `json:"name"`
			Active *bool  `json:"active"`
		}
		if appErr := api.BindJSON(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		location, err := service.UpsertLocation(c.Request.Context(), application.UpsertLocationCommand{
			ID:     c.Param("id"),
			Name:   req.Name,
			Active: req.Active,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, location)
	}
}
