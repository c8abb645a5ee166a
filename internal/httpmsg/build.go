package httpmsg

import (
	"bytes"
	"fmt"
)

// DisableHeaders lists header names that Build omits from the serialized
// output regardless of what the parsed Headers contain, configured via
// Config.DisableHeaders (default: none).
type DisableHeaders map[string]struct{}

// NewDisableHeaders builds a lookup set from a plain name list.
func NewDisableHeaders(names []string) DisableHeaders {
	d := make(DisableHeaders, len(names))
	for _, n := range names {
		d[lower(n)] = struct{}{}
	}
	return d
}

func (d DisableHeaders) has(name string) bool {
	_, ok := d[lower(name)]
	return ok
}

// BuildHeaders serializes a header set as "Name: value\r\n" lines, skipping
// any name present in disabled.
func BuildHeaders(h *Headers, disabled DisableHeaders) []byte {
	var buf bytes.Buffer
	h.Range(func(name, value string) bool {
		if disabled != nil && disabled.has(name) {
			return true
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
		return true
	})
	return buf.Bytes()
}

// BuildRequest serializes a full request line, headers, and body. If
// rechunk is set and the body is non-empty, the body is wrapped with
// ToChunks and a chunked Transfer-Encoding header is forced; otherwise the
// body (if any) is emitted as-is and the caller is responsible for having
// set a correct Content-Length header beforehand.
func BuildRequest(m *Message, disabled DisableHeaders, rechunk bool, chunkSize int) []byte {
	var buf bytes.Buffer
	target := m.RawURL
	if m.URL != nil {
		target = m.URL.String()
	}
	fmt.Fprintf(&buf, "%s %s %s\r\n", m.Method, target, m.Version)
	writeHeadersAndBody(&buf, m, disabled, rechunk, chunkSize)
	return buf.Bytes()
}

// BuildResponse serializes a full status line, headers, and body with the
// same chunking behavior as BuildRequest.
func BuildResponse(m *Message, disabled DisableHeaders, rechunk bool, chunkSize int) []byte {
	var buf bytes.Buffer
	reason := m.Reason
	if reason == "" {
		reason = "OK"
	}
	fmt.Fprintf(&buf, "%s %s %s\r\n", m.Version, m.Code, reason)
	writeHeadersAndBody(&buf, m, disabled, rechunk, chunkSize)
	return buf.Bytes()
}

func writeHeadersAndBody(buf *bytes.Buffer, m *Message, disabled DisableHeaders, rechunk bool, chunkSize int) {
	body := m.Body
	h := m.Headers

	if rechunk && len(body) > 0 {
		h = h.Clone()
		h.Set("Transfer-Encoding", "chunked")
		h.Del("Content-Length")
		buf.Write(BuildHeaders(h, disabled))
		buf.WriteString("\r\n")
		buf.Write(toChunks(body, chunkSize))
		return
	}

	buf.Write(BuildHeaders(h, disabled))
	buf.WriteString("\r\n")
	buf.Write(body)
}

// BuildPacket wraps an arbitrary byte slice for transmission when no
// Message is involved (e.g. a raw tunnel byte span in a devtools capture).
func BuildPacket(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
