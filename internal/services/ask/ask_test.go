package ask

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorStub(t *testing.T, pending int32, final int, finalBody string) (*httptest.Server, *string) {
	var polls int32
	var question string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/question":
			body, _ := io.ReadAll(r.Body)
			question = string(body)
			w.Header().Set("Location", "/answer/abc")
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/answer/abc":
			if atomic.AddInt32(&polls, 1) <= pending {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte(`{"state":"Running"}`))
				return
			}
			w.WriteHeader(final)
			_, _ = w.Write([]byte(finalBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &question
}

func TestAsk(t *testing.T) {
	srv, question := monitorStub(t, 2, http.StatusOK, "You need to ask a question.")

	var out bytes.Buffer
	a := New(srv.URL, &out)
	a.poll = time.Millisecond

	require.NoError(t, a.Ask(context.Background(), ""))
	assert.Equal(t, DefaultQuestion, *question)
	assert.Equal(t, "Task is Running\nTask is Running\nCompleted!\nYou need to ask a question.\n", out.String())
}

func TestAsk_Failed(t *testing.T) {
	srv, _ := monitorStub(t, 0, http.StatusInternalServerError, `{"state":"Failed","message":"boom"}`)

	a := New(srv.URL, io.Discard)
	a.poll = time.Millisecond
	err := a.Ask(context.Background(), "why?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestAsk_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, io.Discard).Ask(context.Background(), "q")
	assert.ErrorContains(t, err, "unexpected status 502")
}
