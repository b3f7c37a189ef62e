// Command hioload-httpd serves static files and the demo login pages over
// an epoll reactor.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(submain(context.Background(), os.Args[1:]))
}
