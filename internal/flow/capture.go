package flow

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/blinkpay/internal/camera"
	"github.com/kozaktomas/blinkpay/internal/constants"
	"github.com/kozaktomas/blinkpay/internal/faceapi"
	"github.com/kozaktomas/blinkpay/internal/liveness"
)

// capture is the face scanning stage of a flow: the camera scope, the
// progress bar and liveness polling, all bound to one stage context.
type capture struct {
	frames  *camera.FrameBuffer
	camera  *camera.Scope
	checker liveness.Checker
	opts    options
	log     zerolog.Logger
	send    func(Event)

	mu       sync.Mutex
	closed   bool
	cancel   context.CancelFunc
	progress float64
	live     *faceapi.LivenessResult
	tasks    sync.WaitGroup
}

// newCapture creates an idle capture. checker may be nil to disable liveness.
func newCapture(checker liveness.Checker, opts options, log zerolog.Logger, send func(Event)) *capture {
	c := &capture{
		frames:  camera.NewFrameBuffer(opts.maxFrameBytes),
		checker: checker,
		opts:    opts,
		log:     log,
		send:    send,
	}
	c.camera = camera.NewScope(c.frames, log)
	return c
}

// bind stops whatever the previous stage started and, when active, starts the
// camera, the progress ticker and liveness polling under a child of parent.
func (c *capture) bind(parent context.Context, active bool) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if !active || c.closed {
		c.mu.Unlock()
		if err := c.camera.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("could not stop camera")
		}
		return
	}
	var ctx context.Context
	ctx, c.cancel = context.WithCancel(parent)
	c.progress = 0
	c.live = nil
	polling := c.opts.livenessEnabled && c.checker != nil
	tasks := 1
	if polling {
		tasks++
	}
	// Add happens under the lock close takes before Wait.
	c.tasks.Add(tasks)
	c.mu.Unlock()

	if err := c.camera.Start(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not start camera")
		for range tasks {
			c.tasks.Done()
		}
		return
	}

	go func() {
		defer c.tasks.Done()
		progress := liveness.NewProgress(c.opts.progressInterval, constants.ProgressStep)
		_ = progress.Run(ctx, func(percent float64) {
			c.mu.Lock()
			c.progress = percent
			c.mu.Unlock()
			c.send(Event{Type: EventProgress, Data: percent})
		})
	}()

	if !polling {
		return
	}
	go func() {
		defer c.tasks.Done()
		poller := liveness.NewPoller(c.checker, c.camera, c.opts.livenessInterval, c.log)
		_, err := poller.Run(ctx, func(u liveness.Update) {
			c.mu.Lock()
			result := u.Result
			c.live = &result
			c.mu.Unlock()
			c.send(Event{Type: EventLiveness, Data: u})
		})
		if err != nil && ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("liveness polling stopped")
		}
	}()
}

// latest returns the most recent frame of the open camera.
func (c *capture) latest() (camera.Frame, error) {
	return c.camera.Latest()
}

// state returns the progress and a copy of the accumulated liveness result.
func (c *capture) state() (float64, *faceapi.LivenessResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil {
		return c.progress, nil
	}
	live := *c.live
	return c.progress, &live
}

// close stops the stage tasks and releases the camera. It returns once every
// background task has exited; later binds are no-ops.
func (c *capture) close() {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if err := c.camera.Close(); err != nil {
		c.log.Warn().Err(err).Msg("could not release camera")
	}
	c.tasks.Wait()
}
