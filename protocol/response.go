// File: protocol/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response assembly into the bounded write buffer.

package protocol

import "fmt"

// appendResponse formats into the write buffer. It fails, leaving the
// buffer untouched, when the text does not fit.
func (c *Conn) appendResponse(format string, args ...any) bool {
	var scratch [256]byte
	s := fmt.Appendf(scratch[:0], format, args...)
	if len(s) > len(c.writeBuf)-c.writeLen {
		return false
	}
	c.writeLen += copy(c.writeBuf[c.writeLen:], s)
	return true
}

func (c *Conn) addStatusLine(status int, title string) bool {
	c.status = status
	return c.appendResponse("%s %d %s\r\n", "HTTP/1.1", status, title)
}

func (c *Conn) addHeaders(contentLength int) bool {
	return c.addContentLength(contentLength) && c.addLinger() && c.addBlankLine()
}

func (c *Conn) addContentLength(n int) bool {
	return c.appendResponse("Content-Length: %d\r\n", n)
}

func (c *Conn) addLinger() bool {
	value := "close"
	if c.linger {
		value = "keep-alive"
	}
	return c.appendResponse("Connection: %s\r\n", value)
}

func (c *Conn) addBlankLine() bool {
	return c.appendResponse("%s", "\r\n")
}

func (c *Conn) addContent(body string) bool {
	return c.appendResponse("%s", body)
}

// processWrite builds the response for outcome and describes it as one or
// two iovecs. It reports false when the headers do not fit.
func (c *Conn) processWrite(outcome Outcome) bool {
	msgs := c.opts.Messages
	var body string
	switch outcome {
	case InternalError:
		if !c.addStatusLine(500, titleInternal) {
			return false
		}
		body = msgs.Internal
	case BadRequest:
		c.linger = false
		if !c.addStatusLine(400, titleBad) {
			return false
		}
		body = msgs.BadRequest
	case NoResource:
		if !c.addStatusLine(404, titleNotFound) {
			return false
		}
		body = msgs.NotFound
	case ForbiddenRequest:
		if !c.addStatusLine(403, titleForbid) {
			return false
		}
		body = msgs.Forbidden
	case FileRequest:
		if !c.addStatusLine(200, titleOK) {
			return false
		}
		if c.file != nil {
			if !c.addHeaders(len(c.file)) {
				return false
			}
			c.iov[0] = c.writeBuf[:c.writeLen]
			c.iov[1] = c.file
			c.iovCount = 2
			c.bytesToSend = c.writeLen + len(c.file)
			return true
		}
		body = emptyPage
	default:
		return false
	}
	if !c.addHeaders(len(body)) || !c.addContent(body) {
		return false
	}
	c.iov[0] = c.writeBuf[:c.writeLen]
	c.iovCount = 1
	c.bytesToSend = c.writeLen
	return true
}
