package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/spotlog/pkg/logger"
)

func TestPushoverSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/messages.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"message": r.PostForm.Get("message"),
		}
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	p := NewPushover(PushoverConfig{BaseURL: srv.URL, AppToken: "app", RequestTimeout: time.Second}, logger.NewNop())
	p.Send(context.Background(), Notification{Kind: KindTakeoff, Message: "Takeoff logged", Recipient: "user1"})

	assert.Equal(t, map[string]string{"token": "app", "user": "user1", "message": "Takeoff logged"}, got)
}

func TestPushoverFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // unreachable

	p := NewPushover(PushoverConfig{BaseURL: srv.URL, RequestTimeout: time.Second}, logger.NewNop())
	assert.NotPanics(t, func() {
		p.Send(context.Background(), Notification{Message: "x", Recipient: "u"})
	})
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func TestNATSSendPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATS(pub, "spotlog.flights", logger.NewNop())

	at := time.Date(2024, 6, 13, 9, 0, 0, 0, time.UTC)
	n.Send(context.Background(), Notification{Kind: KindLanding, Message: "Landing logged", At: at})

	assert.Equal(t, "spotlog.flights", pub.subject)
	var ev natsEvent
	require.NoError(t, json.Unmarshal(pub.data, &ev))
	assert.Equal(t, KindLanding, ev.Kind)
	assert.Equal(t, "Landing logged", ev.Message)
	assert.True(t, at.Equal(ev.At))
}

func TestNATSPublishErrorIsSwallowed(t *testing.T) {
	n := newNATS(&fakePublisher{err: errors.New("no responders")}, "s", logger.NewNop())
	assert.NotPanics(t, func() { n.Send(context.Background(), Notification{Message: "x"}) })
	n.Close()
}

type recorder struct{ got []Notification }

func (r *recorder) Send(_ context.Context, n Notification) { r.got = append(r.got, n) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, Nop{}, b}.Send(context.Background(), Notification{Message: "hi"})
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
