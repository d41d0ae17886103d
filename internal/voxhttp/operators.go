package voxhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
)

// OperatorsHandler serves GET /operators and GET /operators/{id}.
type OperatorsHandler struct {
	operators repos.OperatorRepo
}

func NewOperatorsHandler(operators repos.OperatorRepo) *OperatorsHandler {
	return &OperatorsHandler{operators: operators}
}

func (h *OperatorsHandler) List(c *gin.Context) {
	limit := atoiDefault(c.Query("limit"), 50)
	ops, err := h.operators.Search(dbctx.Context{Ctx: c.Request.Context()}, c.Query("q"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]operatorResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, newOperatorResponse(op))
	}
	c.JSON(http.StatusOK, gin.H{"operators": out})
}

func (h *OperatorsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operator id"})
		return
	}
	op, err := h.operators.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil || op == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "operator not found"})
		return
	}
	c.JSON(http.StatusOK, newOperatorResponse(op))
}
