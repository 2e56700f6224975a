package http1

import (
	"bytes"
	"strings"

	"github.com/indigo-web/streamhttp/http"
	"github.com/indigo-web/streamhttp/http/proto"
	"github.com/indigo-web/streamhttp/http/status"
	"github.com/indigo-web/streamhttp/internal/parser"
	"github.com/indigo-web/utils/buffer"
	"github.com/indigo-web/utils/uf"
)

var _ parser.Parser = new(Parser)

// Parser is an incremental HTTP/1.1 response header parser. It never blocks:
// each Parse call consumes as much of the passed slice as it can and preserves
// the position across calls, so a response may arrive in arbitrarily fragmented
// transport reads. Once the final CRLF of the header section is met, body
// framing metadata is derived from the parsed headers and the surplus bytes are
// returned untouched.
type Parser struct {
	state        parserState
	response     *http.Response
	respLineBuff buffer.Buffer[byte]
	headersBuff  buffer.Buffer[byte]
	headerKey    string
}

func NewParser(response *http.Response, respLineBuff, headersBuff buffer.Buffer[byte]) *Parser {
	return &Parser{
		state:        eProto,
		response:     response,
		respLineBuff: respLineBuff,
		headersBuff:  headersBuff,
	}
}

// Response exposes the destination the header fields are parsed into.
func (p *Parser) Response() *http.Response {
	return p.response
}

func (p *Parser) Parse(data []byte) (headersCompleted bool, rest []byte, err error) {
	switch p.state {
	case eProto:
		goto proto
	case eCode:
		goto code
	case eStatus:
		goto statusText
	case eHeaderKey:
		goto headerKey
	case eHeaderKeyCR:
		goto headerKeyCR
	case eHeaderColon:
		goto headerColon
	case eHeaderValue:
		goto headerValue
	default:
		panic("BUG: response parser: unknown state")
	}

proto:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if !p.respLineBuff.Append(data...) {
				return false, nil, status.ErrTooLongStatusLine
			}

			return false, nil, nil
		}

		if !p.respLineBuff.Append(data[:sp]...) {
			return false, nil, status.ErrTooLongStatusLine
		}

		p.response.Protocol = proto.FromBytes(p.respLineBuff.Finish())
		if p.response.Protocol == proto.Unknown {
			return false, nil, status.ErrUnsupportedProto
		}

		data = data[sp+1:]
		p.state = eCode
		goto code
	}

code:
	for i := 0; i < len(data); i++ {
		if data[i] == ' ' {
			if p.response.Code < 100 || p.response.Code > 999 {
				return false, nil, status.ErrMalformedResponse
			}

			data = data[i+1:]
			p.state = eStatus
			goto statusText
		}

		if data[i] < '0' || data[i] > '9' {
			return false, nil, status.ErrMalformedResponse
		}

		p.response.Code = status.Code(int(p.response.Code)*10 + int(data[i]-'0'))
		if p.response.Code > 999 {
			return false, nil, status.ErrMalformedResponse
		}
	}

	return false, nil, nil

statusText:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.respLineBuff.Append(data...) {
				return false, nil, status.ErrTooLongStatusLine
			}

			return false, nil, nil
		}

		if !p.respLineBuff.Append(data[:lf]...) {
			return false, nil, status.ErrTooLongStatusLine
		}

		p.response.Status = status.Status(uf.B2S(rstripCR(p.respLineBuff.Finish())))
		data = data[lf+1:]
		p.state = eHeaderKey
		goto headerKey
	}

headerKey:
	if len(data) == 0 {
		return false, nil, nil
	}

	switch data[0] {
	case '\r':
		data = data[1:]
		p.state = eHeaderKeyCR
		goto headerKeyCR
	case '\n':
		data = data[1:]
		goto exitSuccess
	}

	{
		colon := bytes.IndexByte(data, ':')
		if lf := bytes.IndexByte(data, '\n'); lf != -1 && (colon == -1 || lf < colon) {
			// the line ended before a colon was met
			return false, nil, status.ErrMalformedResponse
		}

		if colon == -1 {
			if !p.headersBuff.Append(data...) {
				return false, nil, status.ErrHeadersTooLarge
			}

			return false, nil, nil
		}

		if !p.headersBuff.Append(data[:colon]...) {
			return false, nil, status.ErrHeadersTooLarge
		}

		p.headerKey = uf.B2S(p.headersBuff.Finish())
		data = data[colon+1:]
		p.state = eHeaderColon
		goto headerColon
	}

headerKeyCR:
	if len(data) == 0 {
		return false, nil, nil
	}

	if data[0] != '\n' {
		return false, nil, status.ErrMalformedResponse
	}

	data = data[1:]
	goto exitSuccess

headerColon:
	for i := 0; i < len(data); i++ {
		if data[i] != ' ' {
			data = data[i:]
			p.state = eHeaderValue
			goto headerValue
		}
	}

	return false, nil, nil

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.headersBuff.Append(data...) {
				return false, nil, status.ErrHeadersTooLarge
			}

			return false, nil, nil
		}

		if !p.headersBuff.Append(data[:lf]...) {
			return false, nil, status.ErrHeadersTooLarge
		}

		p.response.Headers.Add(p.headerKey, uf.B2S(rstripCR(p.headersBuff.Finish())))
		data = data[lf+1:]
		p.state = eHeaderKey
		goto headerKey
	}

exitSuccess:
	if err = p.deriveFraming(); err != nil {
		return false, nil, err
	}

	p.state = eProto

	return true, data, nil
}

// deriveFraming fills in the body framing metadata once the header section is
// complete. A response advertising neither Content-Length nor chunked transfer
// encoding is considered bodiless.
func (p *Parser) deriveFraming() error {
	resp := p.response
	resp.Chunked = isChunked(resp.Headers.Values("transfer-encoding"))
	resp.HasTrailer = resp.Headers.Has("trailer")

	if resp.Chunked {
		resp.ContentLength = -1
		return nil
	}

	cl, found := resp.Headers.Get("content-length")
	if !found {
		resp.ContentLength = 0
		return nil
	}

	length, ok := parseUint(cl)
	if !ok {
		return status.ErrBadContentLength
	}

	resp.ContentLength = length

	return nil
}

func isChunked(values []string) bool {
	for _, value := range values {
		for len(value) > 0 {
			var token string
			if comma := strings.IndexByte(value, ','); comma != -1 {
				token, value = value[:comma], value[comma+1:]
			} else {
				token, value = value, ""
			}

			if strings.EqualFold(strings.TrimSpace(token), "chunked") {
				return true
			}
		}
	}

	return false
}

func parseUint(s string) (n int, ok bool) {
	if len(s) == 0 {
		return 0, false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}

		if n > (1<<62)/10 {
			// the value wouldn't fit into an int
			return 0, false
		}

		n = n*10 + int(s[i]-'0')
	}

	return n, true
}

func rstripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}

	return b
}
