// handlers_documents.go - Document definition lookup
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/formstream/backend/internal/contract"
)

// HandleGetDocument returns the stored definition clients build uploads
// against.
func (h *Handler) HandleGetDocument(c echo.Context) error {
	documentID := c.Param("documentId")
	if documentID == "" {
		return NewValidationError("documentId")
	}

	def, err := h.resolver.Definition(c.Request().Context(), documentID)
	if err != nil {
		if errors.Is(err, contract.ErrDefinitionNotFound) {
			return NewNotFoundError("document", documentID)
		}
		return NewInternalError("failed to load document", err)
	}
	return c.JSON(http.StatusOK, def)
}
