package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/corpusloop/platform/core/worker"
	xsync "github.com/corpusloop/platform/pkg/sync"
	"github.com/corpusloop/platform/stream/binding"
)

type StreamJobConfig struct {
	MaxWork int `yaml:"MaxWorker"`
}

// StreamJobOptions wires a StreamWorker to an input binding it consumes
// from and, optionally, an output binding it publishes follow-up messages
// to. Out may be left nil for workers that only ever sink their input.
type StreamJobOptions struct {
	Config *StreamJobConfig
	Worker worker.StreamWorker
	In     binding.Binding
	Out    binding.Binding
}

type StreamJob struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	limiter *xsync.Limiter
	worker  worker.StreamWorker
	in      binding.Binding
	out     binding.Binding
}

func NewStreamJob(opt *StreamJobOptions) Job {
	return &StreamJob{
		limiter: xsync.NewLimiter(opt.Config.MaxWork),
		worker:  opt.Worker,
		in:      opt.In,
		out:     opt.Out,
	}
}

func (s *StreamJob) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}
	s.running.Store(true)
	nctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	xsync.Go(func() {
		s.run(nctx)
	})
	return nil
}

func (s *StreamJob) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *StreamJob) run(ctx context.Context) {
	for {
		s.limiter.Acquire()
		if !s.running.Load() {
			s.limiter.Release()
			return
		}
		s.wg.Add(1)
		xsync.Go(func() {
			if err := s.work(ctx); err != nil {
				slog.Error("job err", slog.String("err", err.Error()))
			}
		})
	}
}

func (s *StreamJob) work(ctx context.Context) error {
	defer s.wg.Done()
	defer s.limiter.Release()

	msg, err := s.in.Receive(ctx)
	if err != nil {
		s.worker.Sleep()
		return err
	}
	if msg == nil {
		s.worker.Sleep()
		return nil
	}
	out, err := s.worker.Work(ctx, msg)
	if err != nil {
		return s.in.Nack(ctx, msg)
	}
	if len(out) == 0 {
		return s.in.Ack(ctx, msg)
	}
	if s.out != nil {
		for _, m := range out {
			if err := s.out.Send(ctx, m); err != nil {
				return err
			}
		}
	}
	return s.in.Ack(ctx, msg)
}
