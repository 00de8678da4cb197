package contracts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/shared/server/middleware"
	"compliance-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches contract routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contracts", h.upload)
	rg.GET("/contracts", h.list)
	rg.GET("/contracts/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	contract, err := h.Svc.Upload(c.Request.Context(), ownerID, fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupported):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to upload contract", nil)
		}
		return
	}
	c.Set(middleware.ContractIDKey, contract.ID)
	respond.JSON(c, http.StatusCreated, toResponse(contract))
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.ContractIDKey, id)
	contract, err := h.Svc.Get(c.Request.Context(), middleware.OwnerIDFromContext(c), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "contract not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch contract", nil)
		}
		return
	}
	respond.OK(c, toResponse(contract))
}

func (h *Handler) list(c *gin.Context) {
	limit, offset := Paging(c, 20, 50)
	list, err := h.Svc.List(c.Request.Context(), middleware.OwnerIDFromContext(c), limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to list contracts", nil)
		}
		return
	}
	resp := make([]ContractResponse, 0, len(list))
	for _, contract := range list {
		resp = append(resp, toResponse(contract))
	}
	respond.OK(c, resp)
}

// Paging reads limit/offset query parameters, clamping limit to max.
func Paging(c *gin.Context, def, max int) (int, int) {
	limit, offset := def, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > max {
		limit = max
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
