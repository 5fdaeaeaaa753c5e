package actionlog

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
)

func NewHttpHandler(actions ActionLog, r *echo.Echo) http.Handler {
	r.GET("/api/runs/:id/actions", func(c echo.Context) error {
		reader, err := actions.Read(c.Param("id"))
		if errors.Is(err, utils.ErrNotFound) {
			return c.JSON(http.StatusOK, []protocol.Action{})
		}
		if err != nil {
			return c.JSON(utils.HttpStatus(err), map[string]string{"error": err.Error()})
		}

		filtered := NewFilteredReader(reader)
		defer filtered.Close()

		if kind := c.QueryParam("action"); kind != "" {
			filtered.AddFilter(ByKind(protocol.ActionKind(kind)))
		}
		if workerId := c.QueryParam("worker_id"); workerId != "" {
			filtered.AddFilter(ByWorker(workerId))
		}

		list, err := ReadAll(filtered)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, list)
	})

	return r
}
