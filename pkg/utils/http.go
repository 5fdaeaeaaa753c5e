package utils

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/srand/fleet/pkg/log"
)

func HttpLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		log.Tracef("%4s %s %v %s", c.Request().Method, c.Request().URL, c.Response().Status, time.Since(start))
		return err
	}
}
