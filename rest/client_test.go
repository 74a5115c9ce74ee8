package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDoer replays canned responses and records every request.
type scriptedDoer struct {
	mu        sync.Mutex
	responses []*http.Response
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	res := d.responses[0]
	d.responses = d.responses[1:]
	return res, nil
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestDoSetsAuthorizationHeader(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{response(200, `{}`)}}
	c := NewClient("user-token", discardLogger(), WithDoer(doer))

	_, err := c.Do(context.Background(), GetGateway(), nil)
	require.NoError(t, err)
	require.Len(t, doer.requests, 1)
	assert.Equal(t, "user-token", doer.requests[0].Header.Get("Authorization"))
}

func TestDoRetriesAfterRateLimit(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		response(429, `{"message":"You are being rate limited.","retry_after":0.01,"global":false}`),
		response(200, `{"url":"wss://gateway.discord.gg"}`),
	}}
	c := NewClient("t", discardLogger(), WithDoer(doer))

	data, err := c.Do(context.Background(), GetGateway(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), "wss://")
	assert.Len(t, doer.requests, 2)
}

func TestDoGivesUpAfterRetryBudget(t *testing.T) {
	var responses []*http.Response
	for i := 0; i < maxTries; i++ {
		responses = append(responses, response(429, `{"retry_after":0.001,"global":false}`))
	}
	doer := &scriptedDoer{responses: responses}
	c := NewClient("t", discardLogger(), WithDoer(doer))

	_, err := c.Do(context.Background(), GetGateway(), nil)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, doer.requests, maxTries)
}

func TestDoMapsErrorTaxonomy(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		response(403, `{"code":50013,"message":"Missing Permissions"}`),
		response(404, `{"code":10003,"message":"Unknown Channel"}`),
	}}
	c := NewClient("t", discardLogger(), WithDoer(doer))

	_, err := c.Do(context.Background(), DeleteChannel(100), nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 50013, he.Code)

	_, err = c.Do(context.Background(), DeleteChannel(100), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDoRetriesTransientServerErrors(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		response(502, ``),
		response(200, `{}`),
	}}
	c := NewClient("t", discardLogger(), WithDoer(doer))

	_, err := c.Do(context.Background(), GetGateway(), nil)
	require.NoError(t, err)
	assert.Len(t, doer.requests, 2)
}

func TestRouteBucketsSplitOnMajorParam(t *testing.T) {
	a := ChannelMessages(100, 50, 0)
	b := ChannelMessages(101, 50, 0)
	assert.NotEqual(t, a.Bucket(), b.Bucket())

	// Different minor resources under one channel share a bucket.
	c := DeleteMessage(100, 1)
	d := DeleteMessage(100, 2)
	assert.Equal(t, c.Bucket(), d.Bucket())
}
