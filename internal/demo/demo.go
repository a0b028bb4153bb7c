// Package demo runs a worker and a coordinator actor against each other over
// the configured transport. The worker hands the coordinator its queue halves
// through a control queue, streams numbers and finally asks for a report with
// a synchronous request; the coordinator answers with squares.
package demo

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/core/ipcq"
	"github.com/zeusync/ipcq/internal/core/ipcq/channel"
	"github.com/zeusync/ipcq/internal/core/ipcq/loop"
	"github.com/zeusync/ipcq/internal/core/ipcq/shm"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/pkg/concurrent"
	"github.com/zeusync/ipcq/pkg/encoding"
	"github.com/zeusync/ipcq/pkg/sequence"
)

const shutdownTimeout = 5 * time.Second

// Worker is the side that sends numbers and makes the synchronous request.
type Worker struct{ *ipcq.Actor }

// Coordinator squares numbers and answers report requests.
type Coordinator struct{ *ipcq.Actor }

func (*Worker) PeerOf(*Coordinator) {}

func (*Coordinator) PeerOf(*Worker) {}

// Result summarizes one run.
type Result struct {
	Transport config.TransportKind
	Count     int
	// Received is the number of squares the worker got back.
	Received int
	// SumOfSquares is computed by the worker from what it received.
	SumOfSquares int
	// Reported is the coordinator's own total, returned by the sync request.
	Reported int
	Elapsed  time.Duration
}

// Consistent reports whether both sides agree on every square.
func (r Result) Consistent() bool {
	return r.Received == r.Count && r.SumOfSquares == r.Reported
}

// Runner wires actors, loops and channels from a Config.
type Runner struct {
	cfg    *config.Config
	logger log.Log
}

func NewRunner(cfg *config.Config, logger log.Log) *Runner {
	return &Runner{cfg: cfg, logger: logger.Named("demo")}
}

type endpoints struct {
	worker      ipcq.Channel
	coordinator ipcq.Channel
	closers     []io.Closer
}

// Run streams count numbers from the worker to the coordinator and waits until
// every square is back.
func (r *Runner) Run(ctx context.Context, count int) (Result, error) {
	if count <= 0 {
		return Result{}, errors.Errorf("count must be positive, got %d", count)
	}
	start := time.Now()

	ends, err := r.connect(ctx)
	if err != nil {
		return Result{}, err
	}

	workerLoop := loop.New("worker", r.logger)
	coordinatorLoop := loop.New("coordinator", r.logger)
	workerLoop.Start()
	coordinatorLoop.Start()

	actorConfig := ipcq.ActorConfigFrom(r.cfg.Queue)
	worker := &Worker{Actor: ipcq.NewActor("worker", ends.worker, workerLoop,
		ipcq.WithSender(ipcq.SyncSender),
		ipcq.WithConfig(actorConfig),
		ipcq.WithLogger(r.logger))}
	coordinator := &Coordinator{Actor: ipcq.NewActor("coordinator", ends.coordinator, coordinatorLoop,
		ipcq.WithReceiver(ipcq.SyncReceiver),
		ipcq.WithConfig(actorConfig),
		ipcq.WithLogger(r.logger))}

	defer r.shutdown(
		[]*loop.Loop{workerLoop, coordinatorLoop},
		[]ipcq.Host{worker, coordinator},
		ends.closers)

	s := newSession(worker, coordinator, count)
	if err = coordinatorLoop.Invoke(ctx, s.serve); err != nil {
		return Result{}, errors.Wrap(err, "start coordinator")
	}
	if err = workerLoop.Invoke(ctx, s.request); err != nil {
		return Result{}, errors.Wrap(err, "start worker")
	}

	select {
	case <-s.done:
	case err = <-s.failed:
		return Result{}, err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	var res Result
	if err = workerLoop.Invoke(ctx, func() { res = s.result() }); err != nil {
		return Result{}, err
	}
	res.Transport = r.cfg.Transport.Kind
	res.Elapsed = time.Since(start)

	r.logger.Info("Demo finished",
		log.String("transport", string(res.Transport)),
		log.Int("count", res.Count),
		log.Int("sum_of_squares", res.SumOfSquares),
		log.Int("reported", res.Reported),
		log.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (r *Runner) connect(ctx context.Context) (*endpoints, error) {
	tc := r.cfg.Transport
	if tc.Kind == config.TransportPipe {
		a, b := channel.NewPipe(
			channel.WithPipeLogger(r.logger),
			channel.WithSharedMemory(shm.Allocator{MaxSize: r.cfg.Queue.MaxSharedBufferSize}))
		return &endpoints{worker: a, coordinator: b, closers: []io.Closer{a, b}}, nil
	}

	listener, err := channel.Listen(tc, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	var accepted, dialed channel.Conn
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := listener.Accept(gctx)
		if err != nil {
			return errors.Wrap(err, "accept")
		}
		accepted = conn
		return nil
	})
	g.Go(func() error {
		dialConfig := tc
		dialConfig.Address = listener.Addr()
		conn, err := channel.Dial(gctx, dialConfig)
		if err != nil {
			return errors.Wrap(err, "dial")
		}
		dialed = conn
		return nil
	})
	if err = g.Wait(); err != nil {
		for _, c := range []io.Closer{accepted, dialed} {
			if c != nil {
				_ = c.Close()
			}
		}
		_ = listener.Close()
		return nil, err
	}

	opts := []channel.RemoteOption{
		channel.WithRemoteLogger(r.logger),
		channel.WithMaxFrameSize(tc.MaxFrameSize),
	}
	worker := channel.NewRemote(dialed, opts...)
	coordinator := channel.NewRemote(accepted, opts...)
	r.logger.Debug("Connected", log.String("transport", string(tc.Kind)), log.String("address", listener.Addr()))

	return &endpoints{
		worker:      worker,
		coordinator: coordinator,
		closers:     []io.Closer{worker, coordinator, listener},
	}, nil
}

// shutdown destroys each actor on its own loop, then closes loops and
// channels in parallel.
func (r *Runner) shutdown(loops []*loop.Loop, actors []ipcq.Host, closers []io.Closer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	concurrent.ParallelMust(sequence.From(actors), func(h ipcq.Host) {
		actor := h.Base()
		home, ok := actor.Dispatcher().(*loop.Loop)
		if !ok {
			actor.Destroy()
			return
		}
		if err := home.Invoke(ctx, actor.Destroy); err != nil {
			r.logger.Warn("Failed to destroy actor", log.String("actor", actor.Name()), log.Error(err))
		}
	})

	all := make([]io.Closer, 0, len(loops)+len(closers))
	for _, l := range loops {
		all = append(all, l)
	}
	all = append(all, closers...)

	if err := concurrent.Concurrent(sequence.From(all), func(c io.Closer) error {
		return c.Close()
	}); err != nil {
		r.logger.Debug("Close failed", log.Error(err))
	}
}

// session holds both ends of every queue. Worker fields are touched only on
// the worker loop, coordinator fields only on the coordinator loop.
type session struct {
	worker      *Worker
	coordinator *Coordinator
	count       int

	// worker side
	control   *ipcq.Producer[*Worker]
	numbers   *ipcq.Producer[*Worker]
	totals    *ipcq.Producer[*Worker]
	squaresIn *ipcq.Consumer[*Worker]
	reportsIn *ipcq.Consumer[*Worker]
	received  int
	sum       int
	reported  int
	hasReport bool

	// coordinator side
	controlIn *ipcq.Consumer[*Coordinator]
	numbersIn ipcq.Consumer[*Coordinator]
	totalsIn  ipcq.Consumer[*Coordinator]
	squares   ipcq.Producer[*Coordinator]
	reports   ipcq.Producer[*Coordinator]
	served    int
	total     int

	done     chan struct{}
	failed   chan error
	finished bool
}

func newSession(worker *Worker, coordinator *Coordinator, count int) *session {
	s := &session{
		worker:      worker,
		coordinator: coordinator,
		count:       count,
		done:        make(chan struct{}),
		failed:      make(chan error, 1),
	}

	// The control queue is the only one whose consumer is handed over in
	// process; every other half travels through it.
	control := ipcq.New[*Worker, *Coordinator](worker)
	s.control, s.controlIn = control.TakeProducer(), control.TakeConsumer()
	return s
}

// serve runs on the coordinator loop.
func (s *session) serve() {
	if err := s.controlIn.Bind(s.coordinator); err != nil {
		s.fail(errors.Wrap(err, "bind control queue"))
		return
	}
	s.coordinator.HandleQueue(s.controlIn.ID(), s.onControl)
}

func (s *session) onControl() error {
	if st := s.controlIn.TryRemove(&s.numbersIn, &s.squares, &s.totalsIn, &s.reports); !st.IsSuccess() {
		return errors.Errorf("decode control message: %s", st)
	}
	for _, bind := range []func(*Coordinator) error{s.numbersIn.Bind, s.squares.Bind, s.totalsIn.Bind, s.reports.Bind} {
		if err := bind(s.coordinator); err != nil {
			return errors.Wrap(err, "bind received half")
		}
	}
	s.coordinator.HandleQueue(s.numbersIn.ID(), s.onNumbers)
	s.coordinator.HandleQueue(s.totalsIn.ID(), s.onTotal)
	return nil
}

func (s *session) onNumbers() error {
	for {
		var n int
		st := s.numbersIn.TryRemove(&n)
		if st == encoding.NotReady {
			return nil
		}
		if !st.IsSuccess() {
			return errors.Errorf("decode number: %s", st)
		}
		if st = s.squares.TryInsertMode(ipcq.BufferedAsync, n*n); !st.IsSuccess() {
			return errors.Errorf("write square: %s", st)
		}
		s.served++
		s.total += n * n
	}
}

// onTotal answers the synchronous request. The report is written while the
// response is being built, so it rides back with the cached squares.
func (s *session) onTotal() error {
	var what string
	if st := s.totalsIn.TryRemove(&what); !st.IsSuccess() {
		return errors.Errorf("decode report request: %s", st)
	}
	if what != "total" {
		return errors.Errorf("unknown report %q", what)
	}
	if st := s.reports.TryInsert(s.served, s.total); !st.IsSuccess() {
		return errors.Errorf("write report: %s", st)
	}
	return nil
}

// request runs on the worker loop.
func (s *session) request() {
	numbers := ipcq.New[*Worker, *Coordinator](s.worker)
	squares := ipcq.NewForConsumer[*Coordinator, *Worker](s.worker)
	totals := ipcq.New[*Worker, *Coordinator](s.worker)
	reports := ipcq.NewForConsumer[*Coordinator, *Worker](s.worker)

	s.numbers, s.totals = numbers.TakeProducer(), totals.TakeProducer()
	s.squaresIn, s.reportsIn = squares.TakeConsumer(), reports.TakeConsumer()
	s.worker.HandleQueue(s.squaresIn.ID(), s.onSquares)

	st := s.control.TryInsertMode(ipcq.Async,
		numbers.TakeConsumer(), squares.TakeProducer(), totals.TakeConsumer(), reports.TakeProducer())
	if !st.IsSuccess() {
		s.fail(errors.Errorf("send control message: %s", st))
		return
	}

	for n := 1; n <= s.count; n++ {
		if st = s.numbers.TryInsertMode(ipcq.BufferedAsync, n); !st.IsSuccess() {
			s.fail(errors.Errorf("send number %d: %s", n, st))
			return
		}
	}

	// Sync flushes the buffered numbers first, so the coordinator has seen all
	// of them when it builds the report.
	if st = s.totals.TryInsertMode(ipcq.Sync, "total"); !st.IsSuccess() {
		s.fail(errors.Errorf("request report: %s", st))
		return
	}
	var served int
	if st = s.reportsIn.TryRemove(&served, &s.reported); !st.IsSuccess() {
		s.fail(errors.Errorf("read report: %s", st))
		return
	}
	if served != s.count {
		s.fail(errors.Errorf("coordinator served %d of %d numbers", served, s.count))
		return
	}
	s.hasReport = true

	// Squares cached on the coordinator came back with the response and no
	// handler runs for those.
	if err := s.onSquares(); err != nil {
		s.fail(err)
	}
}

func (s *session) onSquares() error {
	for {
		var sq int
		st := s.squaresIn.TryRemove(&sq)
		if st == encoding.NotReady {
			break
		}
		if !st.IsSuccess() {
			return errors.Errorf("decode square: %s", st)
		}
		s.received++
		s.sum += sq
	}
	if s.hasReport && s.received >= s.count && !s.finished {
		s.finished = true
		close(s.done)
	}
	return nil
}

func (s *session) result() Result {
	return Result{
		Count:        s.count,
		Received:     s.received,
		SumOfSquares: s.sum,
		Reported:     s.reported,
	}
}

func (s *session) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}
