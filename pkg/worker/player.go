package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"github.com/srand/fleet/pkg/utils"
)

// Returned by players when the games of a run cannot be played at all,
// for example because an engine does not build.
var ErrBrokenRun = errors.New("run cannot be played")

// Plays game pairs with reversed colors between the engines of a task.
type Player interface {
	PlayPairs(ctx context.Context, args protocol.TaskArgs, spsa *protocol.SpsaAssignment, pairs int) (protocol.Results, error)
}

// Simulates games with a fixed strength difference between the engines.
type randomPlayer struct {
	pool  *utils.WorkerPool
	pWin  float64
	pDraw float64
}

// Creates a player simulating games on concurrency cores. The new engine
// scores according to the Elo difference, drawing drawRatio of its games.
func NewRandomPlayer(concurrency int, elo, drawRatio float64) *randomPlayer {
	score := 1 / (1 + math.Pow(10, -elo/400))
	pWin := math.Max(score-drawRatio/2, 0)
	pLoss := math.Max(1-score-drawRatio/2, 0)

	pool := utils.NewWorkerPool(concurrency)
	pool.Start()

	return &randomPlayer{
		pool:  pool,
		pWin:  pWin,
		pDraw: 1 - pWin - pLoss,
	}
}

// Returns the score of the new engine in one game, in half points.
func (p *randomPlayer) game() int {
	x := rand.Float64()
	switch {
	case x < p.pWin:
		return 2
	case x < p.pWin+p.pDraw:
		return 1
	default:
		return 0
	}
}

func (p *randomPlayer) PlayPairs(ctx context.Context, args protocol.TaskArgs, spsa *protocol.SpsaAssignment, pairs int) (protocol.Results, error) {
	if _, err := run.ParseTC(args.TC); err != nil {
		return protocol.Results{}, fmt.Errorf("%w: %v", ErrBrokenRun, err)
	}

	var mu sync.Mutex
	var results protocol.Results

	for i := 0; i < pairs; i++ {
		if ctx.Err() != nil {
			break
		}
		p.pool.Submit(func() {
			first, second := p.game(), p.game()

			mu.Lock()
			defer mu.Unlock()
			for _, g := range []int{first, second} {
				switch g {
				case 2:
					results.Wins++
				case 1:
					results.Draws++
				default:
					results.Losses++
				}
			}
			results.Pentanomial[first+second]++
		})
	}
	p.pool.Wait()

	if err := ctx.Err(); err != nil {
		return protocol.Results{}, err
	}
	return results, nil
}

func (p *randomPlayer) Close() {
	p.pool.Stop()
}
