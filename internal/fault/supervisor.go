// Package fault turns process signals into a cooperative stop flag or a
// best-effort diagnostic dump followed by exit.
package fault

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
)

const stopTimeout = 5 * time.Second

var watched = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGABRT, syscall.SIGSEGV, syscall.SIGBUS}

type Option func(s *Supervisor)

// WithExit replaces os.Exit.
func WithExit(exit func(code int)) Option {
	return func(s *Supervisor) {
		s.exit = exit
	}
}

// WithSignals reads signals from src instead of subscribing to the process.
func WithSignals(src <-chan os.Signal) Option {
	return func(s *Supervisor) {
		s.src = src
	}
}

// Supervisor handles SIGTERM by raising the stop flag, logs SIGINT, and
// answers SIGABRT, SIGSEGV and SIGBUS with a goroutine dump, a short
// diagnostic file and an exit with the signal number.
type Supervisor struct {
	xsync.Stoppable

	conf conf.Fault

	stopping atomic.Bool
	fatals   atomic.Int32
	reserve  atomic.Pointer[[]byte]

	exit func(code int)
	src  <-chan os.Signal
	sigs chan os.Signal
}

func New(c conf.Fault, opts ...Option) *Supervisor {
	s := &Supervisor{
		Stoppable: xsync.NewStopper(stopTimeout),
		conf:      c,
		exit:      os.Exit,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Start reserves memory for the dump path and begins handling signals.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.conf.MemoryReserve > 0 {
		buf := make([]byte, s.conf.MemoryReserve)
		s.reserve.Store(&buf)
	}

	if s.src == nil {
		s.sigs = make(chan os.Signal, 4)
		signal.Notify(s.sigs, watched...)
		s.src = s.sigs
	}

	s.GoAndStop("fault.Supervisor.loop", func() error {
		return s.loop(ctx)
	}, func() error {
		return s.Stop(ctx)
	})

	log.Infof("[fault.Supervisor] started. reserve=%s dir=%s",
		humanize.Bytes(uint64(s.conf.MemoryReserve)), s.dumpDir())

	return nil
}

func (s *Supervisor) loop(ctx context.Context) error {
	for {
		select {
		case <-s.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-s.src:
			if !ok {
				return nil
			}

			s.handle(sig)
		}
	}
}

func (s *Supervisor) handle(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		log.Infof("[fault.Supervisor] %s received, stopping after the current frame", sig)
		s.stopping.Store(true)
	case syscall.SIGINT:
		log.Infof("[fault.Supervisor] %s received, ignored", sig)
	default:
		if ss, ok := sig.(syscall.Signal); ok {
			s.Fatal(ss, "signal "+sig.String())
		}
	}
}

// Stopping is the cooperative stop flag raised by SIGTERM.
func (s *Supervisor) Stopping() bool {
	return s.stopping.Load()
}

// Fatal writes diagnostics and exits with sig as the exit code. Only the
// first call does anything.
func (s *Supervisor) Fatal(sig syscall.Signal, reason string) {
	if s.fatals.Add(1) != 1 {
		return
	}

	s.reserve.Store(nil)

	if err := s.dump(sig, reason); err != nil {
		log.Errorf("[fault.Supervisor] dump failed. %+v", err)
	}

	s.exit(int(sig))
}

// Recover is deferred at the top of goroutines that must not die silently.
// A panic is reported as SIGABRT.
func (s *Supervisor) Recover(name string) {
	if r := recover(); r != nil {
		s.Fatal(syscall.SIGABRT, fmt.Sprintf("%s panic: %v", name, r))
	}
}

func (s *Supervisor) dumpDir() string {
	if s.conf.DumpDir != "" {
		return s.conf.DumpDir
	}

	return os.TempDir()
}

func (s *Supervisor) dump(sig syscall.Signal, reason string) error {
	dir := s.dumpDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create dump dir %s failed", dir)
	}

	now := time.Now()
	base := filepath.Join(dir, fmt.Sprintf("dbe-%d-%d", os.Getpid(), now.Unix()))

	var err error

	if stackErr := writeStacks(base + ".stack"); stackErr != nil {
		err = errors.Join(err, stackErr)
	}

	if diagErr := writeDiag(base+".diag", sig, reason, now); diagErr != nil {
		err = errors.Join(err, diagErr)
	}

	return err
}

func writeStacks(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s failed", path)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return pprof.Lookup("goroutine").WriteTo(f, 2)
}

func writeDiag(path string, sig syscall.Signal, reason string, at time.Time) error {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	diag := fmt.Sprintf("signal: %d (%s)\nreason: %s\ntime: %s\npid: %d\ngo: %s\ngoroutines: %d\nheap: %s in use, %s sys\n",
		int(sig), sig, reason, at.Format(time.RFC3339), os.Getpid(), runtime.Version(), runtime.NumGoroutine(),
		humanize.Bytes(ms.HeapInuse), humanize.Bytes(ms.Sys))

	if err := os.WriteFile(path, []byte(diag), 0o644); err != nil {
		return errors.Wrapf(err, "write %s failed", path)
	}

	return nil
}

func (s *Supervisor) Stop(ctx context.Context) error {
	return s.TurnOff(func() error {
		if s.sigs != nil {
			signal.Stop(s.sigs)
		}

		log.Infof("[fault.Supervisor] stopped.")

		return nil
	})
}
