/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// The proxying writers below follow the wrap writer from https://github.com/go-chi/chi
// (MIT license), with tracking of the time spent on writing the response added.

package middleware

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"time"
)

// WrapResponseWriter is a proxy around an http.ResponseWriter that allows you to hook
// into various parts of the response process.
type WrapResponseWriter interface {
	http.ResponseWriter

	// Status returns the HTTP status of the request, or 0 if one has not yet been sent.
	Status() int

	// BytesWritten returns the total number of bytes sent to the client.
	BytesWritten() int

	// ElapsedTime returns the total time spent on writing the response.
	ElapsedTime() time.Duration

	// Tee causes the response body to be written to the given io.Writer in addition to
	// proxying the writes through. Only one io.Writer can be tee'd to at once: setting
	// a second one will overwrite the first. Writes will be sent to the proxy before
	// being written to this io.Writer.
	Tee(io.Writer)

	// Unwrap returns the original proxied target.
	Unwrap() http.ResponseWriter
}

// NewWrapResponseWriter wraps an http.ResponseWriter, returning a proxy that allows you to
// hook into various parts of the response process. The proxy keeps the optional interfaces
// (http.Flusher, http.Hijacker, io.ReaderFrom, http.Pusher) of the original http.ResponseWriter.
func NewWrapResponseWriter(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	_, fl := rw.(http.Flusher)

	bw := basicWriter{ResponseWriter: rw}

	if protoMajor == 2 {
		_, ps := rw.(http.Pusher)
		if fl && ps {
			return &http2FancyWriter{bw}
		}
	} else {
		_, hj := rw.(http.Hijacker)
		_, rf := rw.(io.ReaderFrom)
		if fl && hj && rf {
			return &httpFancyWriter{bw}
		}
	}
	if fl {
		return &flushWriter{bw}
	}

	return &bw
}

type basicWriter struct {
	http.ResponseWriter
	wroteHeader bool
	code        int
	bytes       int
	elapsed     time.Duration
	tee         io.Writer
}

func (b *basicWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.code = code
	b.wroteHeader = true
	start := time.Now()
	b.ResponseWriter.WriteHeader(code)
	b.elapsed += time.Since(start)
}

func (b *basicWriter) Write(buf []byte) (int, error) {
	b.maybeWriteHeader()
	start := time.Now()
	n, err := b.ResponseWriter.Write(buf)
	b.elapsed += time.Since(start)
	if b.tee != nil {
		_, teeErr := b.tee.Write(buf[:n])
		if err == nil {
			err = teeErr
		}
	}
	b.bytes += n
	return n, err
}

func (b *basicWriter) maybeWriteHeader() {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
}

func (b *basicWriter) Status() int {
	return b.code
}

func (b *basicWriter) BytesWritten() int {
	return b.bytes
}

func (b *basicWriter) ElapsedTime() time.Duration {
	return b.elapsed
}

func (b *basicWriter) Tee(w io.Writer) {
	b.tee = w
}

func (b *basicWriter) Unwrap() http.ResponseWriter {
	return b.ResponseWriter
}

// flushWriter is a writer that additionally satisfies http.Flusher.
type flushWriter struct {
	basicWriter
}

func (f *flushWriter) Flush() {
	f.wroteHeader = true
	f.ResponseWriter.(http.Flusher).Flush()
}

var _ http.Flusher = &flushWriter{}

// httpFancyWriter is a writer that additionally satisfies http.Flusher, http.Hijacker,
// and io.ReaderFrom. It exists for the common case of wrapping the HTTP/1 response
// writer of net/http, which satisfies all of them.
type httpFancyWriter struct {
	basicWriter
}

func (f *httpFancyWriter) Flush() {
	f.wroteHeader = true
	f.ResponseWriter.(http.Flusher).Flush()
}

func (f *httpFancyWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return f.ResponseWriter.(http.Hijacker).Hijack()
}

func (f *httpFancyWriter) ReadFrom(r io.Reader) (int64, error) {
	if f.tee != nil {
		// The Write path counts bytes and duplicates them into the tee.
		return io.Copy(&f.basicWriter, r)
	}
	f.maybeWriteHeader()
	start := time.Now()
	n, err := f.ResponseWriter.(io.ReaderFrom).ReadFrom(r)
	f.elapsed += time.Since(start)
	f.bytes += int(n)
	return n, err
}

var _ http.Flusher = &httpFancyWriter{}
var _ http.Hijacker = &httpFancyWriter{}
var _ io.ReaderFrom = &httpFancyWriter{}

// http2FancyWriter is a writer that additionally satisfies http.Flusher and http.Pusher.
// It exists for the common case of wrapping the HTTP/2 response writer of net/http,
// which satisfies both.
type http2FancyWriter struct {
	basicWriter
}

func (f *http2FancyWriter) Flush() {
	f.wroteHeader = true
	f.ResponseWriter.(http.Flusher).Flush()
}

func (f *http2FancyWriter) Push(target string, opts *http.PushOptions) error {
	return f.ResponseWriter.(http.Pusher).Push(target, opts)
}

var _ http.Flusher = &http2FancyWriter{}
var _ http.Pusher = &http2FancyWriter{}
