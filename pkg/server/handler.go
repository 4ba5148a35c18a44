package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
)

var (
	ErrServerAuthenticationFailed = errors.New("authentication failed")
	ErrServerInvalidPacketType    = errors.New("invalid packet type received")
	ErrServerSlowSubscriber       = errors.New("subscriber is not keeping up, batch dropped")
	ErrServerReadDeadline         = errors.New("failed to set read deadline")
)

func subscriberError(sub *subscriber) error {
	return fmt.Errorf("subscriber: %d, user: %q, prefix: %q", sub.id, sub.username, sub.prefix)
}

func (s *Server) serve(conn net.Conn) {
	s.logger.Printf("server :: accept handle connection --> {remote-address: %s}\n", conn.RemoteAddr().String())
	r := protocol.NewReaderSize(conn, maxRequestFrame)

	if err := conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		s.logger.Printf("server error :: %v\n", errors.Join(ErrServerReadDeadline, err))
		return
	}

	username, err := s.joinHandler(conn, r)
	if err != nil {
		s.logger.Printf("server error :: %v\n", err)
		return
	}
	if username != "" {
		defer s.um.Logout(username)
	}

	req, err := r.Read()
	if err != nil {
		s.logger.Printf("server error :: %v\n", err)
		return
	}
	payload := protocol.SubscribePathPayload{}
	if err := req.Decode(protocol.SubscribePath, &payload); err != nil {
		s.logger.Printf("server error :: %v\n", errors.Join(ErrServerInvalidPacketType, err))
		return
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Printf("server error :: %v\n", errors.Join(ErrServerReadDeadline, err))
		return
	}

	sub := s.subscribe(username, subscriptionPrefix(payload.Path))
	defer s.unsubscribe(sub)

	ack, err := protocol.NewData(req.Sec+1, protocol.AckSubscribe, protocol.AckSubscribePayload{Ok: true})
	if err != nil {
		s.logger.Printf("server error :: %v\n", err)
		return
	}
	if err := protocol.Write(conn, ack); err != nil {
		s.logger.Printf("server error :: %v\n", err)
		return
	}

	s.logger.Printf("server :: subscription %d for %q on prefix %q\n", sub.id, username, sub.prefix)
	s.handleSubscription(conn, r, sub, ack.Sec)
}

// subscriptionPrefix resolves symlinks in a requested prefix since records
// carry real paths. An empty prefix subscribes to everything.
func subscriptionPrefix(path string) string {
	if path == "" {
		return ""
	}
	if resolved, err := model.RealPath(path); err == nil {
		return resolved
	}
	return path
}

// joinHandler authenticates the connection when a user manager is set and
// returns the logged in user.
func (s *Server) joinHandler(conn net.Conn, r *protocol.Reader) (string, error) {
	if s.um == nil {
		return "", nil
	}

	req, err := r.Read()
	if err != nil {
		return "", err
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ackJoinPayload := protocol.AckJoinPayload{}
	joinPayload := protocol.JoinPayload{}

	var authErr error
	if err := req.Decode(protocol.Join, &joinPayload); err != nil {
		authErr = err
		ackJoinPayload.Msg = fmt.Sprintf("invalid join request. %v", err)
	} else if err := s.um.Login(joinPayload.Username, joinPayload.Password, host); err != nil {
		authErr = err
		ackJoinPayload.Msg = err.Error()
	} else {
		ackJoinPayload.Ok = true
	}

	ack, err := protocol.NewData(req.Sec+1, protocol.AckJoin, ackJoinPayload)
	if err == nil {
		err = protocol.Write(conn, ack)
	}
	if err != nil {
		if ackJoinPayload.Ok {
			s.um.Logout(joinPayload.Username)
		}
		return "", err
	}

	if !ackJoinPayload.Ok {
		subErr := fmt.Errorf("username: %q, ip: %q", joinPayload.Username, host)
		return "", errors.Join(ErrServerAuthenticationFailed, authErr, subErr)
	}
	return joinPayload.Username, nil
}

// handleSubscription streams batches until the client goes away or the
// server exits. Clients send nothing after subscribing; any read result
// ends the subscription.
func (s *Server) handleSubscription(conn net.Conn, r *protocol.Reader, sub *subscriber, sec uint64) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = r.Read()
	}()
	defer func() {
		_ = conn.Close()
		<-gone
	}()

	for {
		select {
		case batch := <-sub.events:
			sec++
			data, err := protocol.NewData(sec, protocol.ChangeNotify, protocol.ChangeNotifyPayload{Events: batch})
			if err != nil {
				s.logger.Printf("server error :: %v\n", err)
				continue
			}
			if err := protocol.Write(conn, data); err != nil {
				s.logger.Printf("server error :: %v\n", errors.Join(err, subscriberError(sub)))
				return
			}
		case <-gone:
			s.logger.Printf("server :: subscription %d closed by client\n", sub.id)
			return
		case <-s.exit:
			return
		}
	}
}
