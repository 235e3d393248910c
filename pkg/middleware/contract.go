package middleware

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/inventory-ledger/pkg/contracts/openapi"
	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
)

// ContractValidation rejects requests that do not match the OpenAPI document.
// Undocumented routes (probes, metrics) pass through.
func ContractValidation(validator *openapi.Validator, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := validator.ValidateRequest(c.Request.Context(), c.Request)
		if err != nil {
			if !stderrors.Is(err, openapi.ErrRouteNotFound) {
				logger.WithError(err).Warn("Contract validation failed to run", "path", c.Request.URL.Path)
			}
			c.Next()
			return
		}

		if len(fields) > 0 {
			AbortWithAppError(c, errors.ErrValidationWithFields("request does not match the API contract", fields))
			return
		}
		c.Next()
	}
}
