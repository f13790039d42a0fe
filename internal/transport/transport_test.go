package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"go.viam.com/test"
)

func TestDialAndAccept(t *testing.T) {
	ctx := context.Background()
	ln, err := Listen(ctx, "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err := Dial(ctx, ln.Addr())
	test.That(t, err, test.ShouldBeNil)

	server := <-accepted
	test.That(t, server, test.ShouldNotBeNil)
	defer server.Close()

	_, err = client.Write([]byte("ping"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, client.Close(), test.ShouldBeNil)

	got, err := io.ReadAll(server)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(got), test.ShouldEqual, "ping")
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrTransportFailure), test.ShouldBeTrue)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	c := Wrap(a)

	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, c.Close(), test.ShouldBeNil)

	_, err := c.Write([]byte{1})
	test.That(t, errors.Is(err, ErrTransportFailure), test.ShouldBeTrue)
}

func TestAcceptCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := Listen(ctx, "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	defer ln.Close()

	cancel()
	_, err = ln.Accept(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
