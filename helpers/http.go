package helpers

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	maxRequestBufferSize = 100
)

// A request recorded from `CreateRequestRecorder`.
type RecordedRequest struct {
	// The recorded request.
	Request *http.Request

	// The recorded request body.
	//
	// The server will call `Close()` on the body when it has finished
	// processing the request, so it will no longer be readable on the request
	// itself.
	Body []byte
}

// A canned response for the request recorder to answer with.
type CannedResponse struct {
	Status int
	Body   string
}

// Create a TLS server that records requests and answers each one with the
// given response.
//
// The caller is responsible for shutting down the server.
//
// Due to channels being bounded, there is a maximum of 100 recorded requests
// before the server will start blocking requests.
//
// ```go
//
//	func Test(t *testing.T) {
//	    server, reqs := helpers.CreateRequestRecorder(t, helpers.CannedResponse{200, "{}"})
//	    defer server.Close()
//
//	    // Make requests against server.URL.
//
//	    recorded := helpers.AssertNumRequests(t, 1, reqs)
//	    assert.Equal(t, "/v1/secret/goldfish", recorded[0].Request.URL.Path)
//	}
//
// ```
func CreateRequestRecorder(t *testing.T, response CannedResponse) (*httptest.Server, <-chan RecordedRequest) {
	ch := make(chan RecordedRequest, maxRequestBufferSize)
	server := httptest.NewTLSServer(requestRecorder(t, response, ch))

	return server, ch
}

func requestRecorder(t *testing.T, response CannedResponse, send chan<- RecordedRequest) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		assert.Nil(t, err)

		send <- RecordedRequest{
			Request: r,
			Body:    body,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(response.Status)
		w.Write([]byte(response.Body))
	})
}

// Require that the channel has at least `num` requests recorded.
//
// There is a 5 second timeout before the function will fail.
func AssertNumRequests(t *testing.T, num int, recv <-chan RecordedRequest) []RecordedRequest {
	t.Helper()

	requests := make([]RecordedRequest, 0, num)

	for i := 0; i < num; i++ {
		select {
		case request := <-recv:
			requests = append(requests, request)

		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for request %d", i)
		}
	}

	return requests
}
