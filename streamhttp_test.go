package streamhttp

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/method"
	"github.com/indigo-web/streamhttp/http/status"
	"github.com/indigo-web/streamhttp/transport/dummy"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, response *ResponseStream) []byte {
	var body []byte

	for {
		piece, err := response.RecvSome()
		body = append(body, piece...)
		switch err {
		case nil:
		case io.EOF:
			require.True(t, response.IsDone())
			return body
		default:
			t.Fatalf("unexpected error: %s", err)
		}
	}
}

func TestGetChunkedResponse(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"),
	).OneTime()
	client := NewOver(conn)

	request, response, err := client.MakeRequest(http.NewRequest().WithPath("/x"))
	require.NoError(t, err)
	require.NoError(t, request.SendEOF())
	require.True(t, request.IsDone())
	require.Equal(t, "GET /x HTTP/1.1\r\n\r\n", string(conn.Written))

	require.NoError(t, response.PrefetchHeaders())
	require.True(t, response.IsHeaderDone())
	require.Equal(t, status.OK, response.Response().Code)
	require.True(t, response.Response().Chunked)

	require.Equal(t, "hello", string(drain(t, response)))
}

func TestFixedLengthResponse(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nContent-Le"),
		[]byte("ngth: 10\r\n\r\n12345"),
		[]byte("67890"),
		[]byte("junk that must never be touched"),
	).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	require.NoError(t, response.PrefetchHeaders())
	// repeated prefetch is a no-op
	require.NoError(t, response.PrefetchHeaders())
	require.Equal(t, 10, response.Response().ContentLength)

	require.Equal(t, "1234567890", string(drain(t, response)))
}

func TestBodilessResponse(t *testing.T) {
	conn := dummy.NewCircularClient([]byte("HTTP/1.1 204 No Content\r\n\r\n")).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	body := drain(t, response)
	require.Empty(t, body)
	require.Equal(t, status.NoContent, response.Response().Code)
}

func TestFramingOnlyRead(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"),
		[]byte("5\r\n"),
		[]byte("hello\r\n0\r\n\r\n"),
	).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)
	require.NoError(t, response.PrefetchHeaders())

	// the first read yields framing bytes only. That is an empty yet
	// non-terminal result
	piece, err := response.RecvSome()
	require.NoError(t, err)
	require.Empty(t, piece)
	require.False(t, response.IsDone())

	require.Equal(t, "hello", string(drain(t, response)))
}

func TestChunkedUpload(t *testing.T) {
	const (
		maxChunkSize = 32 * 1024
		total        = 100_000
	)

	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"),
	).OneTime()
	client := NewOver(conn)

	payload := make([]byte, total)
	rand.New(rand.NewSource(7)).Read(payload)

	request, response, err := client.MakeRequest(
		http.NewRequest().
			WithMethod(method.POST).
			WithPath("/upload").
			Chunked(),
	)
	require.NoError(t, err)

	// three unevenly sized pieces
	require.NoError(t, request.SendSome(payload[:60_000]))
	require.NoError(t, request.SendSome(payload[60_000:90_000]))
	require.NoError(t, request.SendSome(payload[90_000:]))
	require.NoError(t, request.SendEOF())

	wire := conn.Written
	boundary := bytes.Index(wire, []byte("\r\n\r\n"))
	require.NotEqual(t, -1, boundary)
	require.Equal(t,
		"POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked",
		string(wire[:boundary]),
	)

	// decode the body back and make sure framing didn't corrupt it
	parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	var (
		decoded []byte
		chunks  int
	)
	rest := wire[boundary+4:]
	for {
		chunk, extra, err := parser.Parse(rest, false)
		if len(chunk) > 0 {
			chunks++
		}

		decoded = append(decoded, chunk...)
		if err != nil {
			require.EqualError(t, err, io.EOF.Error())
			break
		}

		rest = extra
	}

	require.Equal(t, payload, decoded)
	// ceil(100000/32768) chunks plus the terminator
	require.Equal(t, 4, chunks)

	drain(t, response)
}

func TestHeadersPrecondition(t *testing.T) {
	client := NewOver(dummy.NewNopClient())

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	require.Panics(t, func() {
		response.Response()
	})
	require.Panics(t, func() {
		response.Headers()
	})
}

func TestSendAfterEOF(t *testing.T) {
	conn := dummy.NewCircularClient([]byte("HTTP/1.1 200 OK\r\n\r\n")).OneTime()
	client := NewOver(conn)

	request, _, err := client.MakeRequest(
		http.NewRequest().WithMethod(method.POST).Chunked(),
	)
	require.NoError(t, err)

	require.NoError(t, request.SendSome([]byte("data")))
	require.NoError(t, request.SendEOF())
	require.ErrorIs(t, request.SendSome([]byte("more")), status.ErrStreamDone)
	require.ErrorIs(t, request.SendEOF(), status.ErrDoubleEOF)
}

func TestSendOnBodilessRequest(t *testing.T) {
	client := NewOver(dummy.NewNopClient())

	request, _, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)
	require.ErrorIs(t, request.SendSome([]byte("body")), status.ErrNoBody)
}

func TestExchangeInFlight(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"),
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nbye"),
	).OneTime()
	client := NewOver(conn)

	request, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	_, _, err = client.MakeRequest(http.NewRequest())
	require.ErrorIs(t, err, status.ErrExchangeInFlight)

	require.NoError(t, request.SendEOF())
	require.Equal(t, "hi", string(drain(t, response)))

	// the first exchange is over, the connection is free to be reused
	request, response, err = client.MakeRequest(http.NewRequest())
	require.NoError(t, err)
	require.NoError(t, request.SendEOF())
	require.Equal(t, "bye", string(drain(t, response)))
}

func TestShutdown(t *testing.T) {
	t.Run("unblocks a pending read", func(t *testing.T) {
		conn := dummy.NewStuckClient()
		client := NewOver(conn)

		request, response, err := client.MakeRequest(http.NewRequest())
		require.NoError(t, err)

		errs := make(chan error, 1)
		go func() {
			_, err := response.RecvSome()
			errs <- err
		}()

		// let the reader block on the transport
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, client.Shutdown())

		select {
		case err := <-errs:
			require.ErrorIs(t, err, status.ErrShutdown)
		case <-time.After(time.Second):
			t.Fatal("RecvSome did not observe the shutdown")
		}

		// every subsequent operation fails as well
		require.ErrorIs(t, request.SendSome([]byte("data")), status.ErrShutdown)
		_, _, err = client.MakeRequest(http.NewRequest())
		require.ErrorIs(t, err, status.ErrShutdown)
	})

	t.Run("repeated shutdown is a no-op", func(t *testing.T) {
		client := NewOver(dummy.NewNopClient())
		require.NoError(t, client.Shutdown())
		require.NoError(t, client.Shutdown())
	})
}

func TestMalformedResponse(t *testing.T) {
	conn := dummy.NewCircularClient([]byte("HTTP/1.1 2x0 OK\r\n\r\n")).OneTime()
	client := NewOver(conn)

	request, response, err := client.MakeRequest(
		http.NewRequest().WithMethod(method.POST).Chunked(),
	)
	require.NoError(t, err)
	require.NoError(t, request.SendSome([]byte("data")))

	require.ErrorIs(t, response.PrefetchHeaders(), status.ErrMalformedResponse)
	// the stream is poisoned for good
	_, err = response.RecvSome()
	require.ErrorIs(t, err, status.ErrMalformedResponse)
	// and so is the outbound half of the exchange
	require.ErrorIs(t, request.SendSome([]byte("more")), status.ErrMalformedResponse)
}

func TestOverflowingContentLength(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 9999999999999999999\r\n\r\nhello"),
	).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	_, err = response.RecvSome()
	require.ErrorIs(t, err, status.ErrBadContentLength)
}

func TestBadChunkFraming(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz!\r\n"),
	).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	_, err = response.RecvSome()
	require.ErrorIs(t, err, status.ErrBadChunk)
}

func TestTransportError(t *testing.T) {
	brokenPipe := errors.New("broken pipe")
	client := NewOver(dummy.NewBrokenClient(brokenPipe))

	request, response, err := client.MakeRequest(
		http.NewRequest().WithMethod(method.POST).WithContentLength(4),
	)
	require.NoError(t, err)

	require.ErrorIs(t, request.SendSome([]byte("data")), brokenPipe)
	_, err = response.RecvSome()
	require.ErrorIs(t, err, brokenPipe)

	// the connection cannot be re-established: it was handed over via NewOver
	_, _, err = client.MakeRequest(http.NewRequest())
	require.ErrorIs(t, err, brokenPipe)
}

func TestRequestConvenience(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n"),
	).OneTime()
	client := NewOver(conn)

	response, err := client.Request(
		http.NewRequest().
			WithMethod(method.PUT).
			WithPath("/things").
			WithContentLength(11),
		strings.NewReader("hello world"),
	)
	require.NoError(t, err)
	require.Equal(t,
		"PUT /things HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world",
		string(conn.Written),
	)

	drain(t, response)
	require.Equal(t, status.Created, response.Response().Code)
}

type failingReader struct {
	err error
}

func (f failingReader) Read([]byte) (int, error) {
	return 0, f.err
}

func TestRequestFailure(t *testing.T) {
	t.Run("misuse before transmission keeps the connection", func(t *testing.T) {
		conn := dummy.NewCircularClient(
			[]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"),
		).OneTime()
		client := NewOver(conn)

		// a body reader on a request that declares no body
		_, err := client.Request(http.NewRequest(), strings.NewReader("body"))
		require.ErrorIs(t, err, status.ErrNoBody)
		require.Empty(t, conn.Written)

		// the exchange is over, the connection is untouched and reusable
		response, err := client.Request(http.NewRequest().WithPath("/next"), nil)
		require.NoError(t, err)
		require.Equal(t, "hi", string(drain(t, response)))
	})

	t.Run("input failure mid-body poisons the connection", func(t *testing.T) {
		conn := dummy.NewCircularClient([]byte("HTTP/1.1 200 OK\r\n\r\n")).OneTime()
		client := NewOver(conn)

		boom := errors.New("disk error")
		_, err := client.Request(
			http.NewRequest().WithMethod(method.POST).Chunked(),
			io.MultiReader(strings.NewReader("data"), failingReader{boom}),
		)
		require.ErrorIs(t, err, boom)

		// part of the body already hit the wire, so the connection cannot be
		// reused, and with no way to re-dial the client is done for
		_, _, err = client.MakeRequest(http.NewRequest())
		require.ErrorIs(t, err, boom)
	})
}

func TestDuplexFailure(t *testing.T) {
	brokenPipe := errors.New("broken pipe")
	client := NewOver(dummy.NewBrokenClient(brokenPipe))

	request, response, err := client.MakeRequest(
		http.NewRequest().WithMethod(method.POST).Chunked(),
	)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := response.RecvSome()
		errs <- err
	}()

	// a failure on the inbound half must reach the sender as well
	require.ErrorIs(t, <-errs, brokenPipe)
	require.ErrorIs(t, request.SendSome([]byte("data")), brokenPipe)
}

func TestJSON(t *testing.T) {
	t.Run("valid json", func(t *testing.T) {
		conn := dummy.NewCircularClient(
			[]byte("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 17\r\n\r\n{\"hello\":\"world\"}"),
		).OneTime()
		client := NewOver(conn)

		_, response, err := client.MakeRequest(http.NewRequest())
		require.NoError(t, err)

		var model struct {
			Hello string `json:"hello"`
		}
		require.NoError(t, response.JSON(&model))
		require.Equal(t, "world", model.Hello)
	})

	t.Run("mismatching content-type", func(t *testing.T) {
		conn := dummy.NewCircularClient(
			[]byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 2\r\n\r\nhi"),
		).OneTime()
		client := NewOver(conn)

		_, response, err := client.MakeRequest(http.NewRequest())
		require.NoError(t, err)
		require.ErrorIs(t, response.JSON(new(any)), status.ErrUnsupportedMedia)
	})
}

func TestReaderAdapter(t *testing.T) {
	conn := dummy.NewCircularClient(
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 11\r\n\r\nhello"),
		[]byte(" world"),
	).OneTime()
	client := NewOver(conn)

	_, response, err := client.MakeRequest(http.NewRequest())
	require.NoError(t, err)

	body, err := io.ReadAll(response.Reader())
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestWriterAdapter(t *testing.T) {
	conn := dummy.NewCircularClient([]byte("HTTP/1.1 200 OK\r\n\r\n")).OneTime()
	client := NewOver(conn)

	request, _, err := client.MakeRequest(
		http.NewRequest().WithMethod(method.POST).WithContentLength(5),
	)
	require.NoError(t, err)

	writer := request.Writer()
	n, err := writer.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, writer.Close())
	require.True(t, request.IsDone())

	require.Equal(t,
		"POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello",
		string(conn.Written),
	)
}
