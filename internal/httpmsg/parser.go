package httpmsg

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

var crlf = []byte("\r\n")

// Feed appends data to the message and advances parsing as far as possible.
// It is safe to call repeatedly with arbitrary slicing of the same logical
// byte stream: feeding the whole message at once or one byte at a time
// reaches the same State with the same fields populated. Feed returns an
// error only for malformed input (bad start-line, bad chunk size); a
// merely-incomplete message is not an error, it just leaves State short of
// StateComplete.
func (m *Message) Feed(data []byte) error {
	if m.state == StateComplete {
		return fmt.Errorf("httpmsg: Feed called after message already complete")
	}
	m.raw = append(m.raw, data...)
	m.buf = append(m.buf, data...)

	for {
		progressed, err := m.process()
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
		if m.state == StateComplete {
			return nil
		}
	}
}

// process performs one unit of work (consume one line, or as much body as
// is available) and reports whether it made progress, mirroring the
// reference parser's process()/process_line()/process_header() dispatch.
func (m *Message) process() (bool, error) {
	switch m.state {
	case StateInitialized, StateLineReceived, StateReceivingHeaders:
		if progressed, err := m.checkHeaderlessTerminal(); progressed {
			return progressed, err
		}
		line, rest, ok := cutLine(m.buf)
		if !ok {
			return false, nil
		}
		m.buf = rest
		if err := m.processLine(line); err != nil {
			return false, err
		}
		return true, nil

	case StateHeadersComplete, StateReceivingBody:
		return m.processBody()

	default:
		return false, nil
	}
}

// processLine dispatches an empty line (end of headers) to the header
// terminal checks below for context-sensitive handling, all other lines to
// the start-line or header parser.
func (m *Message) processLine(line []byte) error {
	if m.state == StateInitialized {
		if err := m.parseStartLine(line); err != nil {
			return err
		}
		m.state = StateLineReceived
		return nil
	}

	if len(line) == 0 {
		// Blank line: end of headers. Resolve body framing now that every
		// header has been seen.
		m.resolveBodyFraming()
		m.state = StateHeadersComplete
		return nil
	}

	m.state = StateReceivingHeaders
	return m.processHeader(line)
}

func (m *Message) parseStartLine(line []byte) error {
	fields := strings.Fields(string(line))
	if m.kind == KindRequest {
		if len(fields) != 3 {
			return fmt.Errorf("httpmsg: malformed request line %q", line)
		}
		m.Method = fields[0]
		m.RawURL = fields[1]
		m.Version = fields[2]
		u, err := parseRequestTarget(m.Method, m.RawURL)
		if err != nil {
			return err
		}
		m.URL = u
		return nil
	}
	if len(fields) < 2 {
		return fmt.Errorf("httpmsg: malformed status line %q", line)
	}
	m.Version = fields[0]
	m.Code = fields[1]
	if len(fields) >= 3 {
		m.Reason = strings.Join(fields[2:], " ")
	}
	return nil
}

func parseRequestTarget(method, target string) (*URL, error) {
	if method == "CONNECT" {
		return parseConnectAuthority(target)
	}
	if strings.Contains(target, "://") {
		return parseAbsoluteURL(target)
	}
	// Origin-form target (path-only); seen on the server-facing leg after
	// the proxy core plugin has already resolved the upstream host.
	return &URL{Path: target}, nil
}

// processHeader splits "Name: value" on the first colon, rejoining any
// further colons into the value since header values (e.g. times, URLs) may
// legitimately contain them.
func (m *Message) processHeader(line []byte) error {
	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		return fmt.Errorf("httpmsg: malformed header line %q", line)
	}
	name := strings.TrimSpace(string(line[:idx]))
	value := strings.TrimSpace(string(line[idx+1:]))
	m.Headers.Add(name, value)
	return nil
}

// resolveBodyFraming decides, once all headers are known, whether a body
// follows and how it is delimited. Per spec.md §4.1's terminal rules (and
// the original's literal method check), a request whose method is not POST
// completes as soon as headers end regardless of any Content-Length or
// Transfer-Encoding header it happens to carry — only POST requests (and
// all responses except 1xx/204/304 ones) are framed by chunked
// transfer-encoding or Content-Length, chunked taking priority over
// Content-Length per RFC 7230 3.3.3.
func (m *Message) resolveBodyFraming() {
	if m.kind == KindRequest && m.Method != "POST" {
		return
	}
	if m.kind == KindResponse && isBodylessStatus(m.Code) {
		return
	}
	if m.IsChunkedEncoded() {
		m.chunked = newChunkParser()
		return
	}
	if cl, ok := m.Headers.Get("Content-Length"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(cl)); err == nil && n >= 0 {
			m.bodySize = n
		}
	}
}

func (m *Message) processBody() (bool, error) {
	m.state = StateReceivingBody

	if m.chunked != nil {
		if len(m.buf) == 0 {
			return false, nil
		}
		remainder, err := m.chunked.feed(m.buf)
		if err != nil {
			return false, err
		}
		m.buf = remainder
		m.Body = m.chunked.body
		if m.chunked.state == chunkComplete {
			m.state = StateComplete
		}
		return true, nil
	}

	if m.bodySize >= 0 {
		if len(m.Body) >= m.bodySize {
			m.state = StateComplete
			return false, nil
		}
		need := m.bodySize - len(m.Body)
		take := need
		if take > len(m.buf) {
			take = len(m.buf)
		}
		if take == 0 {
			return false, nil
		}
		m.Body = append(m.Body, m.buf[:take]...)
		m.buf = m.buf[take:]
		if len(m.Body) >= m.bodySize {
			m.state = StateComplete
		}
		return true, nil
	}

	// No Content-Length and not chunked: fall through to the terminal rules
	// checked by checkHeaderlessTerminal/checkBodylessTerminal, since this
	// path only runs after headers are complete and both framings were
	// absent.
	return m.checkBodylessTerminal()
}

// checkHeaderlessTerminal implements spec.md §4.1's first terminal rule:
// "Response parser: if state is LINE_RECEIVED and the remaining input
// equals CRLF, complete." A status line with no headers at all is
// immediately followed by the blank line that ends them; cutLine would
// otherwise consume it as an ordinary (if empty) header line and advance
// only to StateHeadersComplete, where a response with no framing header
// would then stall waiting for a body that was never coming. This is
// exactly the well-known-packet shape from spec.md §6,
// "HTTP/1.1 200 Connection established\r\n\r\n". Consulted ahead of
// cutLine on every pass through this state group; it only ever matches
// when state is StateLineReceived, so it is a no-op for any other state.
func (m *Message) checkHeaderlessTerminal() (bool, error) {
	if m.kind == KindResponse && m.state == StateLineReceived && bytes.Equal(m.buf, crlf) {
		m.buf = nil
		m.state = StateComplete
		return true, nil
	}
	return false, nil
}

// checkBodylessTerminal implements the remaining reference terminal rules:
// any response with a 1xx/204/304 status never carries a body regardless
// of framing headers (resolveBodyFraming ignores them for these statuses),
// and a request is
// considered complete as soon as headers end if it declared neither
// Content-Length nor chunked Transfer-Encoding (GET/HEAD/DELETE and similar
// bodyless requests). A response parser does not know the request method,
// so a response to a HEAD request is framed like any other response.
func (m *Message) checkBodylessTerminal() (bool, error) {
	if m.kind == KindRequest {
		m.state = StateComplete
		return false, nil
	}
	if isBodylessStatus(m.Code) {
		m.state = StateComplete
		return false, nil
	}
	// A response with neither framing header and a bodyful status is framed
	// by connection close (RFC 7230 3.3.3 case 7): Close marks it complete
	// once the transport observes EOF.
	return false, nil
}

func isBodylessStatus(code string) bool {
	if len(code) == 3 && code[0] == '1' {
		return true
	}
	return code == "204" || code == "304"
}

// Close signals that the underlying transport reached EOF with no more
// bytes coming. For a connection-close-framed response body this is what
// finally marks the message StateComplete; for anything still mid-headers
// or mid-body it is reported as a truncation error.
func (m *Message) Close() error {
	if m.state == StateComplete {
		return nil
	}
	if m.kind == KindResponse && (m.state == StateHeadersComplete || m.state == StateReceivingBody) &&
		m.chunked == nil && m.bodySize < 0 {
		m.state = StateComplete
		return nil
	}
	return fmt.Errorf("httpmsg: connection closed with message incomplete in state %s", m.state)
}

// cutLine splits buf on the first CRLF, reporting ok=false if none is
// present yet (more data needed).
func cutLine(buf []byte) (line, rest []byte, ok bool) {
	idx := bytes.Index(buf, crlf)
	if idx == -1 {
		return nil, buf, false
	}
	return buf[:idx], buf[idx+2:], true
}
