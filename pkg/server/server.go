// Package server relays delivered event batches to subscribed TCP clients.
package server

import (
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/user"
)

// Batches a subscriber may fall behind before further batches are dropped
// for it.
const subscriberBuffer = 64

const (
	// handshakeTimeout bounds the join and subscribe exchange of a new
	// connection.
	handshakeTimeout = 30 * time.Second
	// maxRequestFrame caps frames read from clients, which only send join
	// and subscribe requests.
	maxRequestFrame = 64 << 10
)

type ServerTLS struct {
	Cert string
	Key  string
}

type subscriber struct {
	id       uint64
	username string
	prefix   string
	events   chan []protocol.EventPayload
}

// wants reports whether path is at or below the subscribed prefix.
func (s *subscriber) wants(path string) bool {
	if s.prefix == "" {
		return true
	}
	prefix := strings.TrimSuffix(s.prefix, "/")
	return strings.TrimSuffix(path, "/") == prefix || strings.HasPrefix(path, prefix+"/")
}

type Server struct {
	address string
	tls     *ServerTLS
	um      *user.Manager
	logger  *log.Logger

	handshakeTimeout time.Duration

	mu     sync.Mutex
	l      net.Listener
	subs   map[uint64]*subscriber
	lastID uint64
	conns  map[net.Conn]struct{}

	exit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewServer returns a server; tls and um are optional.
func NewServer(address string, tls *ServerTLS, um *user.Manager, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		address: address,
		tls:     tls,
		um:      um,
		logger:  logger,
		subs:    make(map[uint64]*subscriber),
		conns:   make(map[net.Conn]struct{}),
		exit:    make(chan struct{}),

		handshakeTimeout: handshakeTimeout,
	}
}

func (s *Server) Listen() error {
	var (
		l   net.Listener
		err error
	)
	if s.tls != nil {
		cert, cerr := tls.LoadX509KeyPair(s.tls.Cert, s.tls.Key)
		if cerr != nil {
			return cerr
		}
		l, err = tls.Listen("tcp", s.address, &tls.Config{Certificates: []tls.Certificate{cert}})
	} else {
		l, err = net.Listen("tcp", s.address)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.l = l
	s.mu.Unlock()

	host, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return err
	}
	s.logger.Printf("server :: running on host %s, port %s, tls %v ...\n", host, port, s.tls != nil)
	return nil
}

// Addr is the bound address once Listen succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// Run accepts connections until Exit. It listens first if Listen was not
// called.
func (s *Server) Run() error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	for {
		conn, err := s.l.Accept()
		if err != nil {
			select {
			case <-s.exit:
				return nil
			default:
			}
			return err
		}

		s.mu.Lock()
		select {
		case <-s.exit:
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		default:
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer s.forget(conn)
			s.serve(conn)
		}()
	}
}

func (s *Server) forget(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// EventHook returns the monitor callback that broadcasts the batches of the
// named monitor. It never blocks on a slow subscriber.
func (s *Server) EventHook(monitor string) func([]model.EventRecord) {
	return func(records []model.EventRecord) {
		s.broadcast(monitor, records)
	}
}

func (s *Server) broadcast(monitor string, records []model.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		batch := make([]protocol.EventPayload, 0, len(records))
		for _, e := range records {
			if sub.wants(e.Path) {
				batch = append(batch, protocol.NewEventPayload(monitor, e))
			}
		}
		if len(batch) == 0 {
			continue
		}

		select {
		case sub.events <- batch:
		default:
			s.logger.Printf("server error :: %v\n", errors.Join(ErrServerSlowSubscriber, subscriberError(sub)))
		}
	}
}

func (s *Server) subscribe(username, prefix string) *subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	sub := &subscriber{
		id:       s.lastID,
		username: username,
		prefix:   prefix,
		events:   make(chan []protocol.EventPayload, subscriberBuffer),
	}
	s.subs[sub.id] = sub
	return sub
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.id)
}

// Subscribers counts the connections currently receiving events.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Exit stops accepting, closes every connection and waits for the
// connection handlers to return.
func (s *Server) Exit() error {
	var err error
	s.once.Do(func() {
		close(s.exit)

		s.mu.Lock()
		if s.l != nil {
			err = s.l.Close()
		}
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
	return err
}
