// File: site/site.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Canned routes plus the login and register form handlers.

package site

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/resource"
)

// Pages served by the canned routes and the form handlers.
const (
	PageRegister      = "/register.html"
	PageLogin         = "/log.html"
	PagePicture       = "/picture.html"
	PageVideo         = "/video.html"
	PageFans          = "/fans.html"
	PageWelcome       = "/welcome.html"
	PageLoginError    = "/logError.html"
	PageRegisterError = "/registerError.html"
)

var canned = map[byte]string{
	'0': PageRegister,
	'1': PageLogin,
	'5': PagePicture,
	'6': PageVideo,
	'7': PageFans,
}

// Site resolves request targets for the demo pages. It implements
// protocol.Resolver.
type Site struct {
	users  *UserStore
	logger pslog.Logger
}

// New returns a Site over users.
func New(users *UserStore, logger pslog.Logger) *Site {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Site{users: users, logger: logger.With("sys", "site")}
}

// Resolve maps a single-digit last segment to its page, and a POST whose
// last segment starts with 2 or 3 to the outcome of a login or register.
// Other targets pass through unchanged.
func (s *Site) Resolve(ctx context.Context, req *protocol.Request, h resource.Handle) (string, error) {
	seg := req.Target
	if i := strings.IndexByte(seg, '?'); i >= 0 {
		seg = seg[:i]
	}
	seg = seg[strings.LastIndexByte(seg, '/')+1:]
	if seg == "" {
		return req.Target, nil
	}
	if req.Method == protocol.MethodPost {
		switch seg[0] {
		case '2':
			return s.login(req.Body), nil
		case '3':
			return s.register(req.Body, h)
		}
	}
	if len(seg) == 1 {
		if page, ok := canned[seg[0]]; ok {
			return page, nil
		}
	}
	return req.Target, nil
}

// credentials parses a user=...&password=... form body.
func credentials(body []byte) (user, password string, ok bool) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return "", "", false
	}
	user, password = form.Get("user"), form.Get("password")
	return user, password, user != "" && password != ""
}

func (s *Site) login(body []byte) string {
	user, password, ok := credentials(body)
	if ok && s.users.Check(user, password) {
		s.logger.Info("site.login.ok", "user", user)
		return PageWelcome
	}
	s.logger.Info("site.login.failed", "user", user)
	return PageLoginError
}

// register needs the leased resource handle: a request that ran without
// one cannot be recorded.
func (s *Site) register(body []byte, h resource.Handle) (string, error) {
	user, password, ok := credentials(body)
	if !ok {
		return PageRegisterError, nil
	}
	if h == nil {
		return "", errors.New("site: register without a resource handle")
	}
	switch err := s.users.Register(user, password); {
	case err == nil:
		s.logger.Info("site.register.ok", "user", user, "handle", h.ID())
		return PageLogin, nil
	case errors.Is(err, ErrUserExists):
		s.logger.Info("site.register.taken", "user", user)
		return PageRegisterError, nil
	default:
		s.logger.Warn("site.register.persist_failed", "user", user, "error", err)
		return PageRegisterError, nil
	}
}
