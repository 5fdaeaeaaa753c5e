package worker

import (
	"errors"
	"net/url"
	"runtime"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/utils"
)

// Version reported by workers.
const Version = "1.0.0"

type WorkerConfig struct {
	Grpc utils.GRPCOptions `mapstructure:"grpc"`

	// gRPC URI of the primary scheduler.
	SchedulerGrpcUri string `mapstructure:"scheduler_grpc_uri"`

	// Identity of the worker. Derived from the machine id when empty.
	WorkerId string `mapstructure:"worker_id"`

	// Number of games played in parallel.
	Concurrency int `mapstructure:"concurrency"`

	// Only play tasks of this run.
	RunId string `mapstructure:"run_id"`

	// Number of game pairs played between reports.
	ReportPairs int `mapstructure:"report_pairs"`

	// Interval between heartbeats while a task is played.
	BeatInterval time.Duration `mapstructure:"beat_interval"`

	// Delay before retrying a rejected request.
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// Exit after this many tasks, zero to play forever.
	MaxTasks int `mapstructure:"max_tasks"`

	// Strength of the simulated new engine relative to the base engine.
	Elo float64 `mapstructure:"elo"`

	// Share of simulated games ending in a draw.
	DrawRatio float64 `mapstructure:"draw_ratio"`
}

func (c *WorkerConfig) SetDefaults() {
	if c.WorkerId == "" {
		c.WorkerId = defaultWorkerId()
	}
	if c.Concurrency == 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.ReportPairs == 0 {
		c.ReportPairs = 8
	}
	if c.BeatInterval == 0 {
		c.BeatInterval = 30 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.DrawRatio == 0 {
		c.DrawRatio = 0.4
	}
}

func defaultWorkerId() string {
	id, err := machineid.ProtectedID("fleet-worker")
	if err != nil {
		log.Debug("No machine id, using a random worker id:", err)
		return uuid.NewString()
	}
	return id[:16]
}

// Checks if the worker configuration is valid.
func (c *WorkerConfig) Validate() error {
	if c.SchedulerGrpcUri == "" {
		return errors.New("A scheduler URI is required")
	}
	if _, err := url.Parse(c.SchedulerGrpcUri); err != nil {
		return errors.New("The scheduler URI is not a valid URI")
	}
	if c.WorkerId == "" {
		return errors.New("A worker id is required")
	}
	if c.Concurrency <= 0 {
		return errors.New("The concurrency must be greater than zero")
	}
	if c.ReportPairs <= 0 {
		return errors.New("The number of pairs per report must be greater than zero")
	}
	if c.BeatInterval <= 0 || c.RetryInterval <= 0 {
		return errors.New("The beat and retry intervals must be positive")
	}
	if c.DrawRatio < 0 || c.DrawRatio >= 1 {
		return errors.New("The draw ratio must be in [0, 1)")
	}
	return nil
}

func (c *WorkerConfig) Log() {
	log.Info("Worker configuration:")
	log.Infof("  scheduler_grpc_uri = %s", c.SchedulerGrpcUri)
	log.Infof("  worker_id = %s", c.WorkerId)
	log.Infof("  concurrency = %d", c.Concurrency)
	if c.RunId != "" {
		log.Infof("  run_id = %s", c.RunId)
	}
	log.Infof("  report_pairs = %d", c.ReportPairs)
	log.Infof("  beat_interval = %v", c.BeatInterval)
	log.Infof("  elo = %v", c.Elo)
	log.Infof("  draw_ratio = %v", c.DrawRatio)
	c.Grpc.Log()
}
