package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
)

type httpError struct {
	Error string `json:"error"`
}

func replyError(c echo.Context, err error) error {
	return c.JSON(utils.HttpStatus(err), httpError{Error: err.Error()})
}

// Binds the JSON request body, calls the scheduler and replies with the result.
func jsonCall[Req, Resp any](call func(context.Context, Req) (Resp, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Req
		if err := c.Bind(&req); err != nil {
			return replyError(c, fmt.Errorf("%w: %v", utils.ErrBadRequest, err))
		}

		resp, err := call(c.Request().Context(), req)
		if err != nil {
			return replyError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// Like jsonCall, for calls without a result.
func jsonAck[Req any](call func(context.Context, Req) error) echo.HandlerFunc {
	return jsonCall(func(ctx context.Context, req Req) (struct{}, error) {
		return struct{}{}, call(ctx, req)
	})
}

func runCall(call func(ctx context.Context, id string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := call(c.Request().Context(), c.Param("id")); err != nil {
			return replyError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// Installs the worker API, the administration API and metrics.
func NewHttpHandler(scheduler Scheduler, r *echo.Echo) {
	api := r.Group("/api")

	api.POST("/request_task", jsonCall(scheduler.RequestTask))
	api.POST("/update_task", jsonCall(scheduler.UpdateTask))
	api.POST("/beat", jsonAck(scheduler.Beat))
	api.POST("/failed_task", jsonAck(scheduler.FailedTask))
	api.POST("/stop_run", jsonAck(scheduler.StopRun))
	api.POST("/request_spsa", jsonCall(scheduler.RequestSpsa))

	api.GET("/runs", func(c echo.Context) error {
		status := protocol.RunStatus(c.QueryParam("status"))
		if c.QueryParam("active") == "true" {
			runs, err := scheduler.ActiveRuns(c.Request().Context())
			if err != nil {
				return replyError(c, err)
			}
			return c.JSON(http.StatusOK, runsResponse{Runs: runs})
		}

		runs, err := scheduler.ListRuns(c.Request().Context(), status)
		if err != nil {
			return replyError(c, err)
		}
		return c.JSON(http.StatusOK, runsResponse{Runs: runs})
	})

	api.POST("/runs", jsonCall(scheduler.CreateRun))

	api.GET("/runs/:id", func(c echo.Context) error {
		r, err := scheduler.GetRun(c.Request().Context(), c.Param("id"))
		if err != nil {
			return replyError(c, err)
		}
		return c.JSON(http.StatusOK, r)
	})

	api.GET("/runs/:id/elo", func(c echo.Context) error {
		elo, err := scheduler.GetElo(c.Request().Context(), c.Param("id"))
		if err != nil {
			return replyError(c, err)
		}
		return c.JSON(http.StatusOK, elo)
	})

	api.POST("/runs/:id/pause", runCall(scheduler.PauseRun))
	api.POST("/runs/:id/resume", runCall(scheduler.ResumeRun))
	api.POST("/runs/:id/finish", runCall(func(ctx context.Context, id string) error {
		return scheduler.FinishRun(ctx, id, "finished by operator")
	}))

	api.GET("/workers", func(c echo.Context) error {
		return c.JSON(http.StatusOK, workersResponse{Workers: scheduler.Workers()})
	})

	r.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, metricsText(scheduler.Statistics()))
	})
}

type metric struct {
	name  string
	kind  string
	help  string
	value int64
}

func metricsText(stats *SchedulerStatistics) string {
	primary := int64(0)
	if stats.Primary {
		primary = 1
	}

	metrics := []metric{
		{"fleet_primary", "gauge", "One if this instance owns the write path.", primary},
		{"fleet_workers", "gauge", "The number of workers currently known.", stats.Workers},
		{"fleet_runs_active", "gauge", "The number of unfinished runs in the cache.", stats.ActiveRuns},
		{"fleet_runs_finished_total", "counter", "The total number of finished runs.", stats.FinishedRuns},
		{"fleet_tasks_active", "gauge", "The number of tasks currently being played.", stats.ActiveTasks},
		{"fleet_cores_active", "gauge", "The number of cores playing active tasks.", stats.ActiveCores},
		{"fleet_tasks_assigned_total", "counter", "The total number of assigned tasks.", stats.AssignedTasks},
		{"fleet_admission_capacity", "gauge", "The number of task requests processed concurrently.", stats.Admission.Capacity},
		{"fleet_admission_in_flight", "gauge", "The number of task requests currently processed.", stats.Admission.InFlight},
		{"fleet_admission_admitted_total", "counter", "The total number of admitted task requests.", stats.Admission.Admitted},
		{"fleet_admission_rejected_total", "counter", "The total number of task requests rejected as busy.", stats.Admission.Rejected},
		{"fleet_reports_accepted_total", "counter", "The total number of applied task reports.", stats.Reports.Accepted},
		{"fleet_reports_duplicate_total", "counter", "The total number of replayed task reports.", stats.Reports.Duplicate},
		{"fleet_reports_stale_total", "counter", "The total number of reports for reassigned tasks.", stats.Reports.Stale},
		{"fleet_reports_rejected_total", "counter", "The total number of rejected task reports.", stats.Reports.Rejected},
		{"fleet_cache_entries", "gauge", "The number of cached runs.", stats.Cache.Entries},
		{"fleet_cache_dirty", "gauge", "The number of cached runs with unflushed changes.", stats.Cache.Dirty},
		{"fleet_cache_halted", "gauge", "The number of runs halted for exceeding the dirty bound.", stats.Cache.Halted},
		{"fleet_cache_loads_total", "counter", "The total number of runs loaded from the store.", stats.Cache.Loads},
		{"fleet_cache_mutations_total", "counter", "The total number of run mutations.", stats.Cache.Mutations},
		{"fleet_cache_flushes_total", "counter", "The total number of runs written to the store.", stats.Cache.Flushes},
		{"fleet_cache_flush_failures_total", "counter", "The total number of failed run writes.", stats.Cache.FlushFailures},
	}

	var b strings.Builder
	for _, m := range metrics {
		fmt.Fprintf(&b, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(&b, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(&b, "%s %d\n", m.name, m.value)
	}
	return b.String()
}
