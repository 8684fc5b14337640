package core

import (
	"errors"
	"sync"
)

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")

/** @brief Work handed to the JobSystem. Run is required, the callbacks are optional. */
type Job struct {
	Name       string
	Run        func() error
	OnFailure  func(err error)
	OnComplete func()
	// OnDone runs after OnFailure or OnComplete.
	OnDone func()
}

/**
 * @brief Fixed pool of workers draining a buffered job channel. Used for
 * CPU work that must not stall the frame loop, such as preview encoding.
 */
type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job Job) {
	if err := job.Run(); err != nil {
		LogError("job %s: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}
	if job.OnDone != nil {
		job.OnDone()
	}
}

// Submit queues job, blocking while the channel is full.
func (js *JobSystem) Submit(job Job) {
	Assert(job.Run != nil, "job %q without Run", job.Name)
	js.jobQueue <- job
}

// RunAll submits jobs and waits for them, returning the first failure.
func (js *JobSystem) RunAll(jobs ...Job) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(len(jobs))
	for _, job := range jobs {
		onFailure := job.OnFailure
		job.OnFailure = func(err error) {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			if onFailure != nil {
				onFailure(err)
			}
		}
		onDone := job.OnDone
		job.OnDone = func() {
			if onDone != nil {
				onDone()
			}
			wg.Done()
		}
		js.Submit(job)
	}
	wg.Wait()
	return firstErr
}

/** @brief Stops accepting work and waits for the queued jobs to finish. */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() { close(js.jobQueue) })
	js.wg.Wait()
	return nil
}
