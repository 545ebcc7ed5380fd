// Package ai holds the OpenCV DNN networks used by the pipeline.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrPoolClosed is returned by Forward after Close.
var ErrPoolClosed = errors.New("network pool closed")

// Loader builds one replica of a network.
type Loader func() (gocv.Net, error)

// LoadNet reads a network from disk and prefers the default CPU backend.
// configPath may be empty for self-describing formats such as ONNX.
func LoadNet(modelPath, configPath string) (gocv.Net, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return gocv.Net{}, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("failed to set preferable backend or target")
	}
	return net, nil
}

// NetPool lends out a fixed set of network replicas. A gocv.Net keeps
// per-forward state, so one replica serves one caller at a time.
type NetPool struct {
	name   string
	idle   chan *gocv.Net
	all    []*gocv.Net
	closed chan struct{}
	once   sync.Once
}

// NewNetPool loads replicas copies of a network with load.
func NewNetPool(name string, replicas int, load Loader) (*NetPool, error) {
	if replicas < 1 {
		replicas = 1
	}

	pool := &NetPool{
		name:   name,
		idle:   make(chan *gocv.Net, replicas),
		closed: make(chan struct{}),
	}
	for i := 0; i < replicas; i++ {
		net, err := load()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("load %s replica %d: %w", name, i, err)
		}
		n := net
		pool.all = append(pool.all, &n)
		pool.idle <- &n
	}
	return pool, nil
}

// Name identifies the pool in logs and errors.
func (p *NetPool) Name() string {
	return p.name
}

// Size is the number of replicas.
func (p *NetPool) Size() int {
	return len(p.all)
}

// Forward runs blob through a borrowed replica and returns a copy of the
// default output that the caller must close.
func (p *NetPool) Forward(ctx context.Context, blob gocv.Mat) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.Mat{}, err
	}
	if p.isClosed() {
		return gocv.Mat{}, ErrPoolClosed
	}

	var net *gocv.Net
	select {
	case <-ctx.Done():
		return gocv.Mat{}, ctx.Err()
	case <-p.closed:
		return gocv.Mat{}, ErrPoolClosed
	case net = <-p.idle:
	}
	defer func() { p.idle <- net }()

	net.SetInput(blob, "")
	output := net.Forward("")
	defer output.Close()
	if output.Empty() {
		return gocv.Mat{}, fmt.Errorf("%s forward produced no output", p.name)
	}
	// The output may share memory with the replica, which goes back to the pool.
	return output.Clone(), nil
}

// Close releases every replica. Calls in flight keep their replica until they return.
func (p *NetPool) Close() error {
	p.once.Do(func() {
		close(p.closed)
		for _, net := range p.all {
			net.Close()
		}
	})
	return nil
}

func (p *NetPool) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
