// Package client subscribes to an event broadcast server.
package client

import (
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
)

const handshakeTimeout = 30 * time.Second

type Client struct {
	address  string
	username string
	password string
	prefix   string
	tlsCfg   *tls.Config
	logger   *log.Logger

	mu   sync.Mutex
	conn net.Conn
	exit chan struct{}
	once sync.Once
}

// NewClient returns a client subscribing to records under prefix. username
// may be empty when the server does not authenticate; tlsCfg nil dials
// plain TCP.
func NewClient(address, username, password, prefix string, tlsCfg *tls.Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		address:  address,
		username: username,
		password: password,
		prefix:   prefix,
		tlsCfg:   tlsCfg,
		logger:   logger,
		exit:     make(chan struct{}),
	}
}

func (c *Client) dial() (net.Conn, error) {
	if c.tlsCfg != nil {
		return tls.Dial("tcp", c.address, c.tlsCfg)
	}
	return net.Dial("tcp", c.address)
}

// Run connects, subscribes and calls hook for every received record until
// Exit is called or the server goes away. A clean shutdown returns nil.
func (c *Client) Run(hook func(protocol.EventPayload)) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	select {
	case <-c.exit:
		c.mu.Unlock()
		return conn.Close()
	default:
	}
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	c.logger.Printf("client :: connected to host %s ...\n", c.address)

	r := protocol.NewReader(conn)
	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return errors.Join(ErrClientReadDeadline, err)
	}
	if err := c.auth(conn, r); err != nil {
		return err
	}
	if err := c.subscribe(conn, r); err != nil {
		return err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return errors.Join(ErrClientReadDeadline, err)
	}

	for {
		d, err := r.Read()
		if err != nil {
			select {
			case <-c.exit:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				c.logger.Printf("client :: server closed the connection\n")
				return nil
			}
			return err
		}

		payload := protocol.ChangeNotifyPayload{}
		if err := d.Decode(protocol.ChangeNotify, &payload); err != nil {
			c.logger.Printf("client error :: %v\n", err)
			continue
		}
		for _, e := range payload.Events {
			hook(e)
		}
	}
}

// Exit ends a running Run.
func (c *Client) Exit() error {
	var err error
	c.once.Do(func() {
		close(c.exit)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
	})
	return err
}
