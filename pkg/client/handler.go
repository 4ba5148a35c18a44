package client

import (
	"errors"
	"net"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
)

var (
	ErrClientReadDeadline         = errors.New("failed to set read deadline")
	ErrClientAuthenticationFailed = errors.New("authentication failed")
	ErrClientSubscriptionRejected = errors.New("subscription rejected")
)

// Login into the server(send join packet).
func (c *Client) auth(conn net.Conn, r *protocol.Reader) error {
	if c.username == "" {
		return nil
	}

	req, err := protocol.NewData(0, protocol.Join, protocol.JoinPayload{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return err
	}
	if err := protocol.Write(conn, req); err != nil {
		return err
	}

	response, err := r.Read()
	if err != nil {
		return err
	}
	ack := protocol.AckJoinPayload{}
	if err := response.Decode(protocol.AckJoin, &ack); err != nil {
		return err
	}

	if !ack.Ok {
		var subErr error
		if ack.Msg != "" {
			subErr = errors.New(ack.Msg)
		}
		return errors.Join(ErrClientAuthenticationFailed, subErr)
	}
	return nil
}

func (c *Client) subscribe(conn net.Conn, r *protocol.Reader) error {
	req, err := protocol.NewData(1, protocol.SubscribePath, protocol.SubscribePathPayload{
		Path: c.prefix,
		Id:   c.username,
	})
	if err != nil {
		return err
	}
	if err := protocol.Write(conn, req); err != nil {
		return err
	}

	response, err := r.Read()
	if err != nil {
		return err
	}
	ack := protocol.AckSubscribePayload{}
	if err := response.Decode(protocol.AckSubscribe, &ack); err != nil {
		return err
	}
	if !ack.Ok {
		return errors.Join(ErrClientSubscriptionRejected, errors.New(ack.Msg))
	}

	c.logger.Printf("client :: subscribed to %q\n", c.prefix)
	return nil
}
