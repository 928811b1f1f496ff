package geo

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "http://geo.test/get"

func newTestClient() *Client {
	httpClient := &http.Client{}
	gock.InterceptClient(httpClient)
	return New(Options{Endpoint: testEndpoint, Timeout: 500 * time.Millisecond, HTTPClient: httpClient})
}

func TestLookup(t *testing.T) {
	defer gock.Off()
	gock.New("http://geo.test").
		Get("/get").
		MatchParam("ip", "1.2.3.4").
		Reply(200).
		JSON(map[string]interface{}{
			"ret": 200,
			"data": map[string]string{
				"country": "中国", "prov": "浙江", "city": "杭州", "area": "", "isp": "电信",
			},
		})

	loc, err := newTestClient().Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "浙江", loc.Province)
	assert.Equal(t, "电信", loc.ISP)
	assert.Equal(t, "中国 浙江 杭州", loc.Display())
	assert.True(t, gock.IsDone())
}

func TestLookupIsCached(t *testing.T) {
	defer gock.Off()
	gock.New("http://geo.test").
		Get("/get").
		Times(1).
		Reply(200).
		JSON(map[string]interface{}{"ret": 200, "data": map[string]string{"country": "中国"}})

	c := newTestClient()
	for i := 0; i < 3; i++ {
		loc, err := c.Lookup(context.Background(), "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "中国", loc.Display())
	}
	assert.True(t, gock.IsDone())
}

func TestLookupFailures(t *testing.T) {
	cases := map[string]func(){
		"bad ret": func() {
			gock.New("http://geo.test").Get("/get").Reply(200).JSON(map[string]interface{}{"ret": 500})
		},
		"http error": func() {
			gock.New("http://geo.test").Get("/get").Reply(502)
		},
		"garbage": func() {
			gock.New("http://geo.test").Get("/get").Reply(200).BodyString("<html>")
		},
		"network": func() {
			gock.New("http://geo.test").Get("/get").ReplyError(errors.New("connection reset"))
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			defer gock.Off()
			setup()
			_, err := newTestClient().Lookup(context.Background(), "9.9.9.9")
			assert.ErrorIs(t, err, ErrLookupFailed)
		})
	}
}

func TestDisplayEmpty(t *testing.T) {
	assert.Equal(t, "", Location{}.Display())
	assert.Equal(t, "美国", Location{Country: " 美国 "}.Display())
}

func TestLookupOutlivesCallerCancellation(t *testing.T) {
	defer gock.Off()
	gock.New("http://geo.test").
		Get("/get").
		MatchParam("ip", "9.9.9.9").
		Reply(200).
		JSON(map[string]interface{}{"ret": 200, "data": map[string]string{"country": "中国", "prov": "上海"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient()
	loc, err := c.Lookup(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, "上海", loc.Province)
	assert.True(t, gock.IsDone())

	// cached for the next caller
	loc, err = c.Lookup(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, "上海", loc.Province)
}
