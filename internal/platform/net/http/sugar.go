package http

import (
	stdhttp "net/http"

	"signalroom/internal/platform/net/http/bind"
)

// GetJSON mounts a handler whose result is written in the envelope
func GetJSON(r Router, path string, h func(*stdhttp.Request) (any, error)) {
	r.Get(path, Handle(func(req *stdhttp.Request) Response {
		out, err := h(req)
		if err != nil {
			return Error(err)
		}
		return OK(out)
	}))
}

// PostJSON binds and validates T from the body before calling h.
// h picks the status so async starts can answer 202
func PostJSON[T any](r Router, path string, h func(*stdhttp.Request, T) Response) {
	r.Post(path, Handle(func(req *stdhttp.Request) Response {
		in, err := bind.ParseJSON[T](req)
		if err != nil {
			return Error(err)
		}
		return h(req, in)
	}))
}
