// File: protocol/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Resolution of a parsed request to a file below the document root.

package protocol

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// doRequest resolves the target, checks the file and maps it.
func (c *Conn) doRequest(ctx context.Context) Outcome {
	rel := c.target
	if c.opts.Resolver != nil {
		req := Request{
			Method:    c.method,
			Target:    c.target,
			Host:      c.host,
			KeepAlive: c.linger,
			Body:      c.body,
		}
		resolved, err := c.opts.Resolver.Resolve(ctx, &req, c.handle)
		if err != nil {
			c.opts.Logger.Warn("protocol.resolve.failed", "conn", c.ID(), "target", c.target, "error", err)
			return InternalError
		}
		rel = resolved
	}
	if i := strings.IndexByte(rel, '?'); i >= 0 {
		rel = rel[:i]
	}
	// Cleaning a rooted path drops any ".." that would climb above it.
	c.realPath = filepath.Join(c.opts.DocRoot, filepath.FromSlash(path.Clean("/"+rel)))

	fi, err := os.Stat(c.realPath)
	if err != nil {
		return NoResource
	}
	if fi.Mode().Perm()&0o004 == 0 {
		return ForbiddenRequest
	}
	if fi.IsDir() {
		return BadRequest
	}
	data, err := c.opts.Mapper.Map(c.realPath, fi.Size())
	if err != nil {
		c.opts.Logger.Warn("protocol.mmap.failed", "conn", c.ID(), "path", c.realPath, "error", err)
		return InternalError
	}
	c.file = data
	c.fileSize = fi.Size()
	return FileRequest
}
