package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProcess is a fake decode process backed by an in-memory stream.
type scriptedProcess struct {
	stdout io.Reader
	onKill func()

	killed atomic.Bool
	waited atomic.Bool
}

func (p *scriptedProcess) Stdout() io.Reader { return p.stdout }

func (p *scriptedProcess) Kill() error {
	if p.killed.CompareAndSwap(false, true) && p.onKill != nil {
		p.onKill()
	}
	return nil
}

func (p *scriptedProcess) Wait() error {
	p.waited.Store(true)
	return nil
}

// scriptedLauncher runs a per-call script and records every launch.
type scriptedLauncher struct {
	mu       sync.Mutex
	launches []AccelMode
	script   func(call int, mode AccelMode) (Process, error)
}

func (l *scriptedLauncher) Launch(_ context.Context, _ StreamDescriptor, mode AccelMode) (Process, error) {
	l.mu.Lock()
	l.launches = append(l.launches, mode)
	call := len(l.launches)
	l.mu.Unlock()
	return l.script(call, mode)
}

func (l *scriptedLauncher) launchModes() []AccelMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AccelMode(nil), l.launches...)
}

func fastSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartDelay:  time.Millisecond,
		LaunchBackoff: time.Millisecond,
	}
}

// runSupervisor runs the supervisor on a goroutine and fails the test if it
// does not terminate in time.
func runSupervisor(t *testing.T, s *Supervisor) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not terminate")
	}
}

func TestSupervisor_FramesReachBufferInOrder(t *testing.T) {
	desc := testDescriptor()
	shutdown := NewSignal()
	buffer := NewBuffer(10, shutdown)

	var stream bytes.Buffer
	stream.Write(frameBytes(desc, 0x01))
	stream.Write(frameBytes(desc, 0x02))
	stream.Write(frameBytes(desc, 0x03))
	proc := &scriptedProcess{stdout: &stream}

	launcher := &scriptedLauncher{script: func(call int, _ AccelMode) (Process, error) {
		if call == 1 {
			return proc, nil
		}
		// Session over; end the run instead of reconnecting forever.
		shutdown.Set()
		return nil, errors.New("source gone")
	}}

	s := NewSupervisor(launcher, desc, AccelSoftware, buffer, shutdown, fastSupervisorConfig(), nil)
	runSupervisor(t, s)

	require.Equal(t, 3, buffer.Len())
	for i, fill := range []byte{0x01, 0x02, 0x03} {
		frame, err := buffer.Get(time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), frame.Seq)
		assert.Equal(t, frameBytes(desc, fill), frame.Data)
	}

	assert.True(t, proc.killed.Load(), "process must be killed on teardown")
	assert.True(t, proc.waited.Load(), "process must be reaped")
}

func TestSupervisor_RelaunchesAfterSessionEnd(t *testing.T) {
	desc := testDescriptor()
	shutdown := NewSignal()
	buffer := NewBuffer(10, shutdown)

	launcher := &scriptedLauncher{script: func(call int, _ AccelMode) (Process, error) {
		if call >= 3 {
			shutdown.Set()
			return nil, errors.New("done")
		}
		var stream bytes.Buffer
		stream.Write(frameBytes(desc, byte(call)))
		return &scriptedProcess{stdout: &stream}, nil
	}}

	s := NewSupervisor(launcher, desc, AccelSoftware, buffer, shutdown, fastSupervisorConfig(), nil)
	runSupervisor(t, s)

	assert.GreaterOrEqual(t, len(launcher.launchModes()), 3)
	assert.Equal(t, 2, buffer.Len())
}

func TestSupervisor_LaunchFailureBacksOff(t *testing.T) {
	desc := testDescriptor()
	shutdown := NewSignal()
	buffer := NewBuffer(10, shutdown)

	var calls atomic.Int32
	launcher := &scriptedLauncher{script: func(call int, _ AccelMode) (Process, error) {
		if calls.Add(1) >= 3 {
			shutdown.Set()
		}
		return nil, errors.New("spawn failed")
	}}

	s := NewSupervisor(launcher, desc, AccelSoftware, buffer, shutdown, fastSupervisorConfig(), nil)
	runSupervisor(t, s)

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
	assert.Equal(t, 0, buffer.Len())
}

func TestSupervisor_ShutdownUnblocksPendingRead(t *testing.T) {
	desc := testDescriptor()
	shutdown := NewSignal()
	buffer := NewBuffer(10, shutdown)

	pr, pw := io.Pipe()
	launched := make(chan struct{})
	proc := &scriptedProcess{
		stdout: pr,
		onKill: func() { _ = pw.CloseWithError(io.EOF) },
	}

	launcher := &scriptedLauncher{script: func(call int, _ AccelMode) (Process, error) {
		if call == 1 {
			close(launched)
			return proc, nil
		}
		return nil, errors.New("no more sessions")
	}}

	s := NewSupervisor(launcher, desc, AccelSoftware, buffer, shutdown, fastSupervisorConfig(), nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-launched:
	case <-time.After(5 * time.Second):
		t.Fatal("decoder never launched")
	}

	// The framer is now blocked reading an empty pipe. Shutdown must kill
	// the process to surface EOF and let the supervisor exit.
	shutdown.Set()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not terminate after shutdown")
	}

	assert.True(t, proc.killed.Load())
}

func TestSupervisor_ShutdownBeforeRunLaunchesNothing(t *testing.T) {
	desc := testDescriptor()
	shutdown := NewSignal()
	buffer := NewBuffer(10, shutdown)

	launcher := &scriptedLauncher{script: func(int, AccelMode) (Process, error) {
		t.Error("launch called after shutdown")
		return nil, errors.New("unreachable")
	}}

	shutdown.Set()
	s := NewSupervisor(launcher, desc, AccelSoftware, buffer, shutdown, fastSupervisorConfig(), nil)
	runSupervisor(t, s)

	assert.Empty(t, launcher.launchModes())
}
