// Package radio defines the contract between the collector and the component
// that captures raw CSI frames, and provides the frame sources used by the node.
package radio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

// ErrNoHandler is returned by UnregisterRawFrameHandler when nothing is registered
var ErrNoHandler = errors.New("no frame handler registered")

// FrameHandler receives raw frames on the driver's goroutine. It must not block.
type FrameHandler func(frame csi.RawFrame)

// Driver is a source of raw CSI frames
type Driver interface {
	RegisterRawFrameHandler(h FrameHandler) error
	UnregisterRawFrameHandler() error
}

// dispatcher holds the registered handler. Once UnregisterRawFrameHandler
// returns, no further frames are delivered.
type dispatcher struct {
	mu      sync.RWMutex
	handler FrameHandler
}

func (d *dispatcher) RegisterRawFrameHandler(h FrameHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil frame handler", csi.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handler = h
	return nil
}

func (d *dispatcher) UnregisterRawFrameHandler() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handler == nil {
		return ErrNoHandler
	}
	d.handler = nil
	return nil
}

// deliver hands the frame to the registered handler, if any
func (d *dispatcher) deliver(frame csi.RawFrame) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.handler == nil {
		return false
	}
	d.handler(frame)
	return true
}

func (d *dispatcher) registered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler != nil
}

// Loopback is an in-process driver: frames passed to Inject go straight to the
// registered handler.
type Loopback struct {
	dispatcher

	mu          sync.Mutex
	registerErr error
}

func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) RegisterRawFrameHandler(h FrameHandler) error {
	l.mu.Lock()
	err := l.registerErr
	l.mu.Unlock()

	if err != nil {
		return err
	}
	return l.dispatcher.RegisterRawFrameHandler(h)
}

// SetRegisterError makes subsequent registrations fail with err; nil restores normal behaviour
func (l *Loopback) SetRegisterError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registerErr = err
}

// Inject delivers a frame and reports whether a handler received it
func (l *Loopback) Inject(frame csi.RawFrame) bool {
	return l.deliver(frame)
}

// Registered reports whether a handler is registered
func (l *Loopback) Registered() bool {
	return l.registered()
}
