package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/genesis-gov/genesis/internal/governance/service"
)

// writeResult maps a service Result onto an HTTP response. Fail-closed
// epoch gate failures map to 409 so operators can distinguish "open an
// epoch first" from bad input.
func writeResult(c *gin.Context, res service.Result) {
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}

	status := http.StatusBadRequest
	if res.NotFound {
		status = http.StatusNotFound
	}
	for _, e := range res.Errors {
		if strings.Contains(e, "no open epoch") {
			status = http.StatusConflict
			break
		}
	}
	RecordMutationFailure(c.FullPath())
	c.JSON(status, res)
}
