package protocol

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/momentics/hioload-httpd/resource"
)

func testOptions(t *testing.T) *Options {
	t.Helper()
	opts := DefaultOptions()
	opts.DocRoot = t.TempDir()
	opts.Normalize()
	return &opts
}

func newTestConn(t *testing.T, opts *Options) *Conn {
	t.Helper()
	if opts == nil {
		opts = testOptions(t)
	}
	return NewConn(-1, "test", opts)
}

func feed(c *Conn, s string) {
	c.readLen += copy(c.readBuf[c.readLen:], s)
}

func writeFile(t *testing.T, dir, name, content string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(p, mode); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseLineSplitsRequest(t *testing.T) {
	c := newTestConn(t, nil)
	feed(c, "GET / HTTP/1.1\r\nHost: a\r\n\r\n")
	var lines []string
	for {
		st := c.parseLine()
		if st != LineOK {
			if st != LineOpen {
				t.Fatalf("unexpected status %v", st)
			}
			break
		}
		lines = append(lines, string(c.readBuf[c.lineStart:c.parsedLen-2]))
		c.lineStart = c.parsedLen
	}
	want := []string{"GET / HTTP/1.1", "Host: a", ""}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestParseLineTrailingCRIsIncomplete(t *testing.T) {
	c := newTestConn(t, nil)
	feed(c, "GET / HTTP/1.1\r")
	if st := c.parseLine(); st != LineOpen {
		t.Fatalf("status = %v, want LineOpen", st)
	}
	if c.readBuf[c.parsedLen] != '\r' {
		t.Fatalf("trailing CR consumed, parsedLen=%d", c.parsedLen)
	}
	feed(c, "\n")
	if st := c.parseLine(); st != LineOK {
		t.Fatalf("status after LF = %v, want LineOK", st)
	}
	if c.parsedLen != c.readLen {
		t.Fatalf("parsedLen=%d readLen=%d", c.parsedLen, c.readLen)
	}
}

func TestParseLineMalformedTerminators(t *testing.T) {
	for _, in := range []string{"GET /\nHost", "a\rb\r\n"} {
		c := newTestConn(t, nil)
		feed(c, in)
		if st := c.parseLine(); st != LineBad {
			t.Fatalf("%q: status = %v, want LineBad", in, st)
		}
	}
}

func TestParseRequestLine(t *testing.T) {
	cases := []struct {
		line    string
		outcome Outcome
		method  Method
		target  string
	}{
		{"GET / HTTP/1.1", NoRequest, MethodGet, DefaultLanding},
		{"get /index.html http/1.1", NoRequest, MethodGet, "/index.html"},
		{"POST /2 HTTP/1.1", NoRequest, MethodPost, "/2"},
		{"GET http://example.com:8080/a.html HTTP/1.1", NoRequest, MethodGet, "/a.html"},
		{"GET HTTPS://example.com/ HTTP/1.1", NoRequest, MethodGet, DefaultLanding},
		{"GET\t/tab.html\tHTTP/1.1", NoRequest, MethodGet, "/tab.html"},
		{"FOO / HTTP/1.1", BadRequest, MethodOther, ""},
		{"GET / HTTP/1.0", BadRequest, MethodGet, ""},
		{"GET /", BadRequest, MethodGet, ""},
		{"GET / HTTP/1.1 extra", BadRequest, MethodGet, ""},
		{"GET a.html HTTP/1.1", BadRequest, MethodGet, ""},
		{"GET https://example.com HTTP/1.1", BadRequest, MethodGet, ""},
		{"", BadRequest, MethodGet, ""},
	}
	for _, tc := range cases {
		c := newTestConn(t, nil)
		got := c.parseRequestLine([]byte(tc.line))
		if got != tc.outcome {
			t.Errorf("%q: outcome = %v, want %v", tc.line, got, tc.outcome)
			continue
		}
		if got != NoRequest {
			continue
		}
		if c.method != tc.method || c.target != tc.target {
			t.Errorf("%q: method=%v target=%q, want %v %q", tc.line, c.method, c.target, tc.method, tc.target)
		}
		if c.state != StateHeaders {
			t.Errorf("%q: state = %v, want headers", tc.line, c.state)
		}
		if c.hasBody != (tc.method == MethodPost) {
			t.Errorf("%q: hasBody = %v", tc.line, c.hasBody)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	c := newTestConn(t, nil)
	c.state = StateHeaders
	for _, h := range []string{
		"connection:  Keep-Alive",
		"Content-Length: 12",
		"Host: example.com:8080",
		"X-Ignored: yes",
	} {
		if o := c.parseHeader([]byte(h)); o != NoRequest {
			t.Fatalf("%q: outcome %v", h, o)
		}
	}
	if !c.linger || c.contentLength != 12 || c.host != "example.com" {
		t.Fatalf("linger=%v contentLength=%d host=%q", c.linger, c.contentLength, c.host)
	}
	if o := c.parseHeader(nil); o != NoRequest || c.state != StateBody {
		t.Fatalf("blank line with body: outcome=%v state=%v", o, c.state)
	}

	c = newTestConn(t, nil)
	c.state = StateHeaders
	if o := c.parseHeader(nil); o != GetRequest {
		t.Fatalf("blank line without body: outcome=%v", o)
	}
	for _, bad := range []string{"Content-Length: abc", "Content-Length: -1", "Content-Length: 999999"} {
		c = newTestConn(t, nil)
		if o := c.parseHeader([]byte(bad)); o != BadRequest {
			t.Errorf("%q: outcome %v, want BadRequest", bad, o)
		}
	}
}

func TestProcessReadByteByByte(t *testing.T) {
	opts := testOptions(t)
	writeFile(t, opts.DocRoot, "judge.html", "<p>hi</p>", 0o644)
	c := newTestConn(t, opts)
	req := "GET / HTTP/1.1\r\nConnection: keep-alive\r\nHost: h\r\n\r\n"
	var got Outcome
	for i := 0; i < len(req); i++ {
		feed(c, req[i:i+1])
		got = c.processRead(context.Background())
		if i < len(req)-1 && got != NoRequest {
			t.Fatalf("byte %d: outcome %v before request end", i, got)
		}
	}
	if got != FileRequest {
		t.Fatalf("outcome = %v, want FileRequest", got)
	}
	if string(c.file) != "<p>hi</p>" || !c.linger {
		t.Fatalf("file=%q linger=%v", c.file, c.linger)
	}
	c.Close()
}

func TestBodyCompletesAtDeclaredLength(t *testing.T) {
	opts := testOptions(t)
	writeFile(t, opts.DocRoot, "ok.html", "ok", 0o644)
	var seen string
	opts.Resolver = ResolverFunc(func(_ context.Context, req *Request, _ resource.Handle) (string, error) {
		seen = string(req.Body)
		return "/ok.html", nil
	})
	c := newTestConn(t, opts)
	feed(c, "POST /2 HTTP/1.1\r\nContent-Length: 5\r\n\r\nab")
	if o := c.processRead(context.Background()); o != NoRequest {
		t.Fatalf("partial body: outcome %v", o)
	}
	feed(c, "cdeXYZ")
	if o := c.processRead(context.Background()); o != FileRequest {
		t.Fatalf("full body: outcome %v", o)
	}
	if seen != "abcde" {
		t.Fatalf("body view = %q, want %q", seen, "abcde")
	}
	c.Close()
}

func TestFullBufferWithoutRequestIsBad(t *testing.T) {
	opts := testOptions(t)
	opts.ReadBufferSize = 32
	c := newTestConn(t, opts)
	feed(c, "GET /aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if o := c.processRead(context.Background()); o != BadRequest {
		t.Fatalf("outcome = %v, want BadRequest", o)
	}
}
