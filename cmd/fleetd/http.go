package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/srand/fleet/pkg/actionlog"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/scheduler"
	"github.com/srand/fleet/pkg/utils"
)

// Sets up the HTTP API on a specific listening address and starts it.
func serveHttp(sched scheduler.Scheduler, actions actionlog.ActionLog, uri string) {
	host, err := utils.ParseHttpUrl(uri)
	if err != nil {
		log.Fatal(err)
	}

	log.Info("Listening on http", host)

	r := echo.New()
	r.HideBanner = true
	r.Use(utils.HttpLogger)
	r.Add(echo.GET, "/debug/pprof/*", echo.WrapHandler(http.DefaultServeMux))

	scheduler.NewHttpHandler(sched, r)
	actionlog.NewHttpHandler(actions, r)

	if err := http.ListenAndServe(host, r); err != nil {
		log.Fatal(err)
	}
}
