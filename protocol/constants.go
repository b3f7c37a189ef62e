// File: protocol/constants.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// Default sizes.
const (
	DefaultReadBufferSize  = 2048
	DefaultWriteBufferSize = 1024
	DefaultLanding         = "/judge.html"
)

// Method is the request method.
type Method int

const (
	MethodOther Method = iota
	MethodGet
	MethodPost
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "OTHER"
	}
}

// State is the parse phase of the current request.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
)

// LineStatus is the result of one scanner step.
type LineStatus int

const (
	LineOK LineStatus = iota
	LineBad
	LineOpen
)

// Outcome is what parsing and resolution decided for the request.
type Outcome int

const (
	NoRequest Outcome = iota
	GetRequest
	BadRequest
	NoResource
	ForbiddenRequest
	FileRequest
	InternalError
)

func (o Outcome) String() string {
	switch o {
	case NoRequest:
		return "incomplete"
	case GetRequest:
		return "complete"
	case BadRequest:
		return "bad_request"
	case NoResource:
		return "not_found"
	case ForbiddenRequest:
		return "forbidden"
	case FileRequest:
		return "file"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Interest is the readiness the socket must be re-armed for.
type Interest int

const (
	InterestRead Interest = iota
	InterestWrite
	// InterestClose asks the owner to close the connection.
	InterestClose
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	default:
		return "close"
	}
}

// Owner is the current holder of a Conn.
type Owner int32

const (
	OwnerReactor Owner = iota
	OwnerQueued
	OwnerWorker
	// OwnerArming is a worker that has finished with the connection and is
	// re-arming its socket. The reactor may claim it from this state.
	OwnerArming
)

func (o Owner) String() string {
	switch o {
	case OwnerReactor:
		return "reactor"
	case OwnerQueued:
		return "queued"
	case OwnerWorker:
		return "worker"
	case OwnerArming:
		return "arming"
	default:
		return "unknown"
	}
}

// Status lines and bodies.
const (
	titleOK       = "OK"
	titleBad      = "Bad Request"
	titleForbid   = "Forbidden"
	titleNotFound = "Not Found"
	titleInternal = "Internal Error"

	emptyPage = "<html><body></body></html>"
)

// Messages are the bodies of error responses.
type Messages struct {
	BadRequest string
	Forbidden  string
	NotFound   string
	Internal   string
}

// DefaultMessages returns the stock error bodies.
func DefaultMessages() Messages {
	return Messages{
		BadRequest: "Your request has bad syntax or is inherently impossible to satisfy.\n",
		Forbidden:  "You do not have permission to get file from this server.\n",
		NotFound:   "The request file was not found on this server.\n",
		Internal:   "There was an unusual problem serving the requested file.\n",
	}
}
