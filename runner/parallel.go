package runner

import (
	"context"
	"sync"

	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/types"
)

// caseWork is one case scheduled for execution, tagged with its position in
// the suite's declared order.
type caseWork struct {
	Index int
	Case  types.Case
}

type caseWorkResult struct {
	Index  int
	Result types.CaseResult
}

// runParallel fans cases out to a bounded set of worker goroutines. Each
// result slot is written exactly once by the single collector loop, which
// also serializes observer callbacks in completion order; the final slice is
// in declared order regardless of completion order.
func (r *Runner) runParallel(ctx context.Context, suite *types.Suite, ag agent.Agent, observer Observer) []types.CaseResult {
	results := make([]types.CaseResult, len(suite.Cases))

	bufferSize := min(r.cfg.Concurrency*2, 100)
	workChan := make(chan caseWork, bufferSize)
	resultChan := make(chan caseWorkResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go r.caseWorker(ctx, &wg, ag, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for i, c := range suite.Cases {
			select {
			case workChan <- caseWork{Index: i, Case: c}:
			case <-ctx.Done():
				r.log.Debug("Context cancelled while dispatching cases")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for wr := range resultChan {
		results[wr.Index] = wr.Result
		if observer != nil {
			observer(wr.Index, wr.Result)
		}
	}
	return results
}

func (r *Runner) caseWorker(ctx context.Context, wg *sync.WaitGroup, ag agent.Agent, workChan <-chan caseWork, resultChan chan<- caseWorkResult) {
	defer wg.Done()

	for {
		select {
		case work, ok := <-workChan:
			if !ok {
				return
			}
			result := r.RunCase(ctx, work.Case, ag)
			select {
			case resultChan <- caseWorkResult{Index: work.Index, Result: result}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
