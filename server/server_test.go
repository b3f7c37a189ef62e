// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end lifecycle tests over loopback.

package server_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/resource"
	"github.com/momentics/hioload-httpd/server"
	"github.com/momentics/hioload-httpd/site"
)

var pages = map[string]string{
	"judge.html":    "<html>judge</html>",
	"log.html":      "<html>log</html>",
	"welcome.html":  "<html>welcome</html>",
	"logError.html": "<html>log error</html>",
}

func testConfig(t *testing.T) *server.Config {
	t.Helper()
	root := t.TempDir()
	for name, body := range pages {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.DocRoot = root
	cfg.Workers = 2
	cfg.MaxRequests = 16
	cfg.Resource.Capacity = 2
	return cfg
}

func startServer(t *testing.T, cfg *server.Config, opts ...server.ServerOption) *server.Server {
	t.Helper()
	s, err := server.NewServer(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

func dial(t *testing.T, s *server.Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(s.Port())))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetDeadline(time.Now().Add(5 * time.Second))
	return c, bufio.NewReader(c)
}

type response struct {
	status  string
	headers map[string]string
	body    string
}

func readResponse(t *testing.T, br *bufio.Reader) response {
	t.Helper()
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("status line: %v", err)
	}
	r := response{status: strings.TrimSpace(line), headers: map[string]string{}}
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			t.Fatalf("header: %v", err)
		}
		if line = strings.TrimSpace(line); line == "" {
			break
		}
		k, v, _ := strings.Cut(line, ":")
		r.headers[k] = strings.TrimSpace(v)
	}
	n, _ := strconv.Atoi(r.headers["Content-Length"])
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		t.Fatalf("body: %v", err)
	}
	r.body = string(body)
	return r
}

func TestNotFoundClosesConnection(t *testing.T) {
	s := startServer(t, testConfig(t))
	c, br := dial(t, s)
	io.WriteString(c, "GET /missing.html HTTP/1.1\r\nHost: localhost\r\n\r\n")
	r := readResponse(t, br)
	if r.status != "HTTP/1.1 404 Not Found" || r.headers["Connection"] != "close" {
		t.Fatalf("response %+v", r)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		t.Fatalf("want EOF after close, got %v", err)
	}
}

func TestKeepAliveServesTwiceThenIdles(t *testing.T) {
	cfg := testConfig(t)
	cfg.TimeSlot = 40 * time.Millisecond
	s := startServer(t, cfg)
	c, br := dial(t, s)
	for i := 0; i < 2; i++ {
		io.WriteString(c, "GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
		r := readResponse(t, br)
		if r.status != "HTTP/1.1 200 OK" || r.body != pages["judge.html"] {
			t.Fatalf("round %d: %+v", i, r)
		}
	}
	if _, err := br.ReadByte(); err != io.EOF {
		t.Fatalf("idle connection not evicted: %v", err)
	}
}

func TestBusyAboveConnectionCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConns = 1
	s := startServer(t, cfg)
	c, br := dial(t, s)
	io.WriteString(c, "GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
	readResponse(t, br)

	_, br2 := dial(t, s)
	got, _ := io.ReadAll(br2)
	if string(got) != "Internal server busy" {
		t.Fatalf("got %q", got)
	}
}

func TestLoginAndRegisterForms(t *testing.T) {
	cfg := testConfig(t)
	cfg.UsersFile = filepath.Join(t.TempDir(), "users.yaml")
	os.WriteFile(cfg.UsersFile, []byte("users:\n  alice: secret\n"), 0o644)
	s := startServer(t, cfg)

	post := func(target, body string) response {
		c, br := dial(t, s)
		fmt.Fprintf(c, "POST %s HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", target, len(body), body)
		return readResponse(t, br)
	}
	if r := post("/2CGISQL.cgi", "user=alice&password=secret"); r.body != pages["welcome.html"] {
		t.Fatalf("login: %+v", r)
	}
	if r := post("/2CGISQL.cgi", "user=alice&password=bad"); r.body != pages["logError.html"] {
		t.Fatalf("bad login: %+v", r)
	}
	if r := post("/3CGISQL.cgi", "user=bob&password=pw"); r.body != pages["log.html"] {
		t.Fatalf("register: %+v", r)
	}
	if r := post("/2CGISQL.cgi", "user=bob&password=pw"); r.body != pages["welcome.html"] {
		t.Fatalf("login after register: %+v", r)
	}
	users, err := site.LoadUsers(cfg.UsersFile)
	if err != nil || users["bob"] != "pw" {
		t.Fatalf("users file = %v, %v", users, err)
	}
}

func TestUsersFileHotReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.UsersFile = filepath.Join(t.TempDir(), "users.yaml")
	os.WriteFile(cfg.UsersFile, []byte("users: {}\n"), 0o644)
	s := startServer(t, cfg)
	if err := os.WriteFile(cfg.UsersFile, []byte("users:\n  erin: pw\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !s.Users().Check("erin", "pw") {
		if time.Now().After(deadline) {
			t.Fatal("users file change not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsListen = "127.0.0.1:0"
	s := startServer(t, cfg)
	c, br := dial(t, s)
	io.WriteString(c, "GET / HTTP/1.1\r\n\r\n")
	readResponse(t, br)

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get("http://" + s.MetricsAddr() + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if strings.Contains(string(b), `hioload_httpd_responses_total{status="200"} 1`) &&
			strings.Contains(string(b), "hioload_httpd_resource_handles_free 2") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics missing response counter:\n%s", b)
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.MetricsAddr() + "/debug/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if b, _ := io.ReadAll(resp.Body); !strings.Contains(string(b), `"resource.pool"`) {
		t.Fatalf("state = %s", b)
	}
}

func TestStartupFailsWithoutHandles(t *testing.T) {
	cfg := testConfig(t)
	failing := resource.DialerFunc(func(context.Context, resource.Config, int) (resource.Handle, error) {
		return nil, errors.New("refused")
	})
	if _, err := server.NewServer(context.Background(), cfg, server.WithDialer(failing)); !errors.Is(err, resource.ErrNoCapacity) {
		t.Fatalf("got %v", err)
	}
}

func TestStartupFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	handles := make(chan *resource.MemoryHandle, 8)
	dialer := resource.DialerFunc(func(ctx context.Context, c resource.Config, slot int) (resource.Handle, error) {
		h, err := resource.MemoryDialer{}.Dial(ctx, c, slot)
		if err == nil {
			handles <- h.(*resource.MemoryHandle)
		}
		return h, err
	})
	if _, err := server.NewServer(context.Background(), cfg, server.WithDialer(dialer)); err == nil {
		t.Fatal("bound a port already in use")
	}
	close(handles)
	for h := range handles {
		if !h.Closed() {
			t.Fatal("handle left open after failed startup")
		}
	}
}

func TestRunTwice(t *testing.T) {
	s := startServer(t, testConfig(t))
	c, br := dial(t, s)
	io.WriteString(c, "GET / HTTP/1.1\r\n\r\n")
	readResponse(t, br)
	if err := s.Run(context.Background()); !errors.Is(err, server.ErrAlreadyRunning) {
		t.Fatalf("second Run: %v", err)
	}
}
