package port

import "net/http"

// HTTPClient sends download requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
