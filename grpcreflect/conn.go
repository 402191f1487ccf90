package grpcreflect

import (
	"context"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	refv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
)

// v1RetryInterval is how long a client that fell back to v1alpha keeps using
// it before giving v1 another try, so a server upgraded in place is noticed.
const v1RetryInterval = time.Hour

// maxAttempts bounds how many streams one request may go through.
const maxAttempts = 3

type reflectionStream interface {
	Send(*refv1.ServerReflectionRequest) error
	Recv() (*refv1.ServerReflectionResponse, error)
	CloseSend() error
}

// conn owns the single reflection stream of a Client. Requests are written
// and answered one at a time, so each response pairs with the request sent
// just before it.
type conn struct {
	ctx     context.Context
	now     func() time.Time
	v1      refv1.ServerReflectionClient
	v1alpha refv1alpha.ServerReflectionClient

	mu         sync.Mutex
	cancel     context.CancelFunc
	stream     reflectionStream
	onV1Alpha  bool
	v1FailedAt time.Time
}

// roundTrip sends req and waits for its response. A stream that fails is
// discarded and the request is tried again on a fresh one.
func (c *conn) roundTrip(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if err := c.openLocked(); err != nil {
			return nil, err
		}
		resp, err := c.exchangeLocked(req)
		if err == nil {
			return resp, nil
		}
		c.closeLocked()
		if attempt >= maxAttempts {
			return nil, err
		}
		c.maybeFallBackLocked(err)
	}
}

func (c *conn) exchangeLocked(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	if err := c.stream.Send(req); err != nil {
		if err == io.EOF {
			// the real error is only reported by Recv
			_, err = c.stream.Recv()
		}
		return nil, err
	}
	return c.stream.Recv()
}

// maybeFallBackLocked switches to v1alpha when a v1 stream failed in a way
// that means the server lacks v1. Unavailable counts too, since some servers
// reset the stream without a status for unknown services.
func (c *conn) maybeFallBackLocked(err error) {
	if !c.usingV1() {
		return
	}
	switch status.Code(err) {
	case codes.Unimplemented, codes.Unavailable:
		c.onV1Alpha = true
		c.v1FailedAt = c.now()
	}
}

func (c *conn) usingV1() bool {
	if c.v1alpha == nil {
		return true
	}
	return c.v1 != nil && !c.onV1Alpha
}

func (c *conn) openLocked() error {
	if c.stream != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(c.ctx)
	if c.onV1Alpha && c.now().Sub(c.v1FailedAt) > v1RetryInterval {
		c.onV1Alpha = false
	}

	if c.usingV1() {
		stream, err := c.v1.ServerReflectionInfo(ctx)
		if err == nil {
			c.stream, c.cancel = stream, cancel
			return nil
		}
		if status.Code(err) != codes.Unimplemented || c.v1alpha == nil {
			cancel()
			return err
		}
		c.onV1Alpha = true
		c.v1FailedAt = c.now()
	}

	stream, err := c.v1alpha.ServerReflectionInfo(ctx)
	if err != nil {
		cancel()
		return err
	}
	c.stream, c.cancel = adaptStreamFromV1Alpha{stream}, cancel
	return nil
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *conn) closeLocked() {
	if c.stream != nil {
		_ = c.stream.CloseSend()
		// read until the server ends the stream, EOF included
		for {
			if _, err := c.stream.Recv(); err != nil {
				break
			}
		}
		c.stream = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
