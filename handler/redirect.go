package handler

import "net/http"

type redirectResponse struct {
	url    string
	status int
}

func (rr redirectResponse) Render(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, rr.url, rr.status)
	return nil
}

// Redirect issues a 302 Found redirect to url.
func Redirect(url string) Response {
	return redirectResponse{url: url, status: http.StatusFound}
}

// RedirectWithStatus issues a redirect with a custom 3xx status.
func RedirectWithStatus(url string, status int) Response {
	if status < 300 || status > 399 {
		status = http.StatusFound
	}
	return redirectResponse{url: url, status: status}
}

type statusResponse int

func (s statusResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(int(s))
	return nil
}

// Status renders an empty body with the given status.
func Status(code int) Response { return statusResponse(code) }
