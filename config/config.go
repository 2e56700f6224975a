package config

import "time"

type (
	ResponseLineSize struct {
		Default, Maximal int
	}

	HeadersSpace struct {
		Default, Maximal int
	}
)

type (
	NET struct {
		// ReadBufferSize is a size of the buffer used to read from the socket, thereby
		// limiting how many bytes a single transport read may yield at most.
		ReadBufferSize int
		// ReadTimeout bounds a single transport read. Zero disables the deadline.
		ReadTimeout time.Duration
		// WriteTimeout bounds a single transport write. Zero disables the deadline.
		WriteTimeout time.Duration
	}

	HTTP struct {
		// ResponseLineSize limits the buffer storing the response line (protocol, code
		// and status). Setting the maximal boundary too low might result in ambiguous
		// errors on perfectly valid responses.
		ResponseLineSize ResponseLineSize
		// HeadersSpace limits the amount of memory occupied by response headers.
		HeadersSpace HeadersSpace
		// HeadersPrealloc is the initial capacity of the parsed headers storage.
		HeadersPrealloc int
	}

	Body struct {
		// MaxChunkSize limits the size of a single chunk produced by the chunked
		// transfer encoder. Bodies bigger than that are split across multiple chunks.
		MaxChunkSize int
		// MaxSize limits the total size of a response body. 0 disables the limit.
		MaxSize uint64
	}
)

// Config holds limits and pre-allocations used across the client. Modify defaults
// (returned via Default()) instead of initializing the struct manually, otherwise
// zero-valued limits will reject pretty much any response.
type Config struct {
	NET  NET
	HTTP HTTP
	Body Body
}

// Default returns the default config. The limits are initially well-balanced and
// fairly permitting.
func Default() *Config {
	return &Config{
		NET: NET{
			ReadBufferSize: 4 * 1024,
			ReadTimeout:    90 * time.Second,
			WriteTimeout:   90 * time.Second,
		},
		HTTP: HTTP{
			ResponseLineSize: ResponseLineSize{
				Default: 256,
				Maximal: 4 * 1024,
			},
			HeadersSpace: HeadersSpace{
				Default: 1 * 1024,
				Maximal: 16 * 1024,
			},
			HeadersPrealloc: 10,
		},
		Body: Body{
			MaxChunkSize: 32 * 1024,
			MaxSize:      0,
		},
	}
}
