package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const Delimiter = '\n'

var (
	ErrReadPacket        = errors.New("failed to read packet from connection")
	ErrUnmarshalPacket   = errors.New("failed to unmarshal packet data")
	ErrMarshalPacket     = errors.New("failed to marshal packet data")
	ErrWritePacket       = errors.New("failed to write packet to connection")
	ErrInconsistentWrite = errors.New("inconsistent data write: bytes written mismatch")
	ErrUnexpectedType    = errors.New("unexpected packet type")
	ErrFrameTooLarge     = errors.New("packet exceeds the frame size limit")
)

// NewData builds a frame with payload marshalled into it.
func NewData(sec uint64, tp Type, payload interface{}) (Data, error) {
	d := Data{
		Sec:  sec,
		Time: time.Now(),
		Type: tp,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Data{}, errors.Join(ErrMarshalPacket, err)
		}
		d.Payload = raw
	}
	return d, nil
}

// Decode unmarshals the payload of d into v after checking its type.
func (d Data) Decode(expect Type, v interface{}) error {
	if d.Type != expect {
		return errors.Join(ErrUnexpectedType, fmt.Errorf("expect %s but received %s", expect, d.Type))
	}
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return errors.Join(ErrUnmarshalPacket, err)
	}
	return nil
}

func Write(w io.Writer, d Data) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.Join(ErrMarshalPacket, err)
	}
	data = append(data, Delimiter)

	n, err := w.Write(data)
	if err != nil {
		return errors.Join(ErrWritePacket, err)
	}
	if n != len(data) {
		return errors.Join(ErrInconsistentWrite, fmt.Errorf("%d != %d", n, len(data)))
	}
	return nil
}

type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader reads frames of any size.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, 0)
}

// NewReaderSize rejects frames longer than max bytes, delimiter included.
// A max of zero or less disables the limit.
func NewReaderSize(r io.Reader, max int) *Reader {
	return &Reader{r: bufio.NewReader(r), max: max}
}

// Read returns the next frame. io.EOF is returned unwrapped when the peer
// closed the connection between frames.
func (r *Reader) Read() (Data, error) {
	line, err := r.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return Data{}, io.EOF
		}
		return Data{}, errors.Join(ErrReadPacket, err)
	}

	d := Data{}
	if err := json.Unmarshal(line[:len(line)-1], &d); err != nil {
		return Data{}, errors.Join(ErrUnmarshalPacket, err)
	}
	return d, nil
}

func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.r.ReadSlice(Delimiter)
		if r.max > 0 && len(line)+len(chunk) > r.max {
			return nil, ErrFrameTooLarge
		}
		line = append(line, chunk...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, err
		}
	}
}
