// File: protocol/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Line scanner and request parser over the connection's read buffer.

package protocol

import (
	"bytes"
	"context"
	"strconv"
)

// parseLine scans from parsedLen for the end of the current line. On
// LineOK the terminator is zeroed and parsedLen points past it. A '\r'
// that is the last buffered byte is left unconsumed.
func (c *Conn) parseLine() LineStatus {
	for ; c.parsedLen < c.readLen; c.parsedLen++ {
		switch c.readBuf[c.parsedLen] {
		case '\r':
			if c.parsedLen+1 == c.readLen {
				return LineOpen
			}
			if c.readBuf[c.parsedLen+1] == '\n' {
				c.readBuf[c.parsedLen] = 0
				c.readBuf[c.parsedLen+1] = 0
				c.parsedLen += 2
				return LineOK
			}
			return LineBad
		case '\n':
			if c.parsedLen > c.lineStart && c.readBuf[c.parsedLen-1] == '\r' {
				c.readBuf[c.parsedLen-1] = 0
				c.readBuf[c.parsedLen] = 0
				c.parsedLen++
				return LineOK
			}
			return LineBad
		}
	}
	return LineOpen
}

// processRead advances the state machine over the buffered bytes.
func (c *Conn) processRead(ctx context.Context) Outcome {
	for {
		if c.state == StateBody {
			if c.parseContent() == GetRequest {
				return c.doRequest(ctx)
			}
			return c.incomplete()
		}
		switch c.parseLine() {
		case LineOpen:
			return c.incomplete()
		case LineBad:
			return BadRequest
		}
		line := c.readBuf[c.lineStart : c.parsedLen-2]
		c.lineStart = c.parsedLen

		switch c.state {
		case StateRequestLine:
			if c.parseRequestLine(line) == BadRequest {
				return BadRequest
			}
		case StateHeaders:
			switch c.parseHeader(line) {
			case BadRequest:
				return BadRequest
			case GetRequest:
				return c.doRequest(ctx)
			}
		}
	}
}

// incomplete reports NoRequest unless the buffer is already full, in which
// case the request can never complete.
func (c *Conn) incomplete() Outcome {
	if c.readLen >= len(c.readBuf) {
		return BadRequest
	}
	return NoRequest
}

var (
	schemeHTTP  = []byte("http://")
	schemeHTTPS = []byte("https://")
)

// parseRequestLine accepts "METHOD TARGET HTTP/1.1".
func (c *Conn) parseRequestLine(line []byte) Outcome {
	fields := bytes.Fields(line)
	if len(fields) != 3 {
		return BadRequest
	}
	method, target, version := fields[0], fields[1], fields[2]
	switch {
	case bytes.EqualFold(method, []byte("GET")):
		c.method = MethodGet
	case bytes.EqualFold(method, []byte("POST")):
		c.method = MethodPost
		c.hasBody = true
	default:
		c.method = MethodOther
		return BadRequest
	}
	if !bytes.EqualFold(version, []byte("HTTP/1.1")) {
		return BadRequest
	}
	c.version = "HTTP/1.1"

	for _, scheme := range [][]byte{schemeHTTP, schemeHTTPS} {
		if len(target) >= len(scheme) && bytes.EqualFold(target[:len(scheme)], scheme) {
			rest := target[len(scheme):]
			i := bytes.IndexByte(rest, '/')
			if i < 0 {
				return BadRequest
			}
			target = rest[i:]
			break
		}
	}
	if len(target) == 0 || target[0] != '/' {
		return BadRequest
	}
	if len(target) == 1 {
		c.target = c.opts.Landing
	} else {
		c.target = string(target)
	}
	c.state = StateHeaders
	return NoRequest
}

var (
	headerConnection    = []byte("Connection:")
	headerContentLength = []byte("Content-Length:")
	headerHost          = []byte("Host:")
)

func hasPrefixFold(line, prefix []byte) bool {
	return len(line) >= len(prefix) && bytes.EqualFold(line[:len(prefix)], prefix)
}

// parseHeader handles one header line; the blank line ends the headers.
func (c *Conn) parseHeader(line []byte) Outcome {
	if len(line) == 0 {
		if c.contentLength != 0 {
			c.state = StateBody
			return NoRequest
		}
		return GetRequest
	}
	switch {
	case hasPrefixFold(line, headerConnection):
		value := bytes.Trim(line[len(headerConnection):], " \t")
		if bytes.EqualFold(value, []byte("keep-alive")) {
			c.linger = true
		}
	case hasPrefixFold(line, headerContentLength):
		value := bytes.Trim(line[len(headerContentLength):], " \t")
		n, err := strconv.Atoi(string(value))
		if err != nil || n < 0 || n > len(c.readBuf)-c.parsedLen {
			return BadRequest
		}
		c.contentLength = n
	case hasPrefixFold(line, headerHost):
		value := bytes.Trim(line[len(headerHost):], " \t")
		if i := bytes.IndexByte(value, ':'); i >= 0 {
			value = value[:i]
		}
		c.host = string(value)
	default:
		c.opts.Logger.Debug("protocol.header.ignored", "conn", c.ID(), "header", string(line))
	}
	return NoRequest
}

// parseContent completes the request once the declared body is buffered.
func (c *Conn) parseContent() Outcome {
	if c.readLen-c.parsedLen < c.contentLength {
		return NoRequest
	}
	c.body = c.readBuf[c.parsedLen : c.parsedLen+c.contentLength : c.parsedLen+c.contentLength]
	return GetRequest
}
