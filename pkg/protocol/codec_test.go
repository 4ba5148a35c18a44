package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

func TestCodec_Frames(t *testing.T) {
	buf := &bytes.Buffer{}

	join, err := NewData(1, Join, JoinPayload{Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, Write(buf, join))

	e := model.Build(7, "/a/b", model.ItemCreated|model.ItemIsFile, nil, nil)
	notify, err := NewData(2, ChangeNotify, ChangeNotifyPayload{Events: []EventPayload{NewEventPayload("docs", e)}})
	require.NoError(t, err)
	require.NoError(t, Write(buf, notify))

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte{Delimiter}))

	r := NewReader(buf)

	d, err := r.Read()
	require.NoError(t, err)
	jp := JoinPayload{}
	require.NoError(t, d.Decode(Join, &jp))
	assert.Equal(t, "u", jp.Username)

	d, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), d.Sec)
	cp := ChangeNotifyPayload{}
	require.NoError(t, d.Decode(ChangeNotify, &cp))
	require.Len(t, cp.Events, 1)
	assert.Equal(t, "docs", cp.Events[0].Monitor)
	assert.Equal(t, "/a/b", cp.Events[0].Path)
	assert.Equal(t, []string{"created"}, cp.Events[0].Actions)
	assert.Equal(t, []string{"file"}, cp.Events[0].Item)

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_Errors(t *testing.T) {
	r := NewReader(bytes.NewBufferString("not json\n{\"tp\":1"))

	_, err := r.Read()
	assert.ErrorIs(t, err, ErrUnmarshalPacket)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrReadPacket)

	d, err := NewData(0, AckJoin, AckJoinPayload{Ok: true})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Decode(Join, &JoinPayload{}), ErrUnexpectedType)
}

func TestCodec_FrameSizeLimit(t *testing.T) {
	buf := &bytes.Buffer{}
	small, err := NewData(1, SubscribePath, SubscribePathPayload{Path: "/a"})
	require.NoError(t, err)
	require.NoError(t, Write(buf, small))

	big, err := NewData(2, SubscribePath, SubscribePathPayload{Path: "/" + strings.Repeat("x", 8192)})
	require.NoError(t, err)
	require.NoError(t, Write(buf, big))

	r := NewReaderSize(buf, 1024)

	d, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Sec)

	_, err = r.Read()
	assert.ErrorIs(t, err, ErrReadPacket)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCodec_UnlimitedReaderSpansBuffers(t *testing.T) {
	buf := &bytes.Buffer{}
	path := "/" + strings.Repeat("y", 3*4096)
	big, err := NewData(1, SubscribePath, SubscribePathPayload{Path: path})
	require.NoError(t, err)
	require.NoError(t, Write(buf, big))

	d, err := NewReader(buf).Read()
	require.NoError(t, err)
	p := SubscribePathPayload{}
	require.NoError(t, d.Decode(SubscribePath, &p))
	assert.Equal(t, path, p.Path)
}
