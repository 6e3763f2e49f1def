package browser

import (
	"net/http"
	"strings"

	"github.com/ternarybob/calbuddy/internal/interfaces"
)

// transientStatuses is the set of response codes reported through the
// transient signal hook
type transientStatuses map[int]struct{}

func newTransientStatuses(codes []int) transientStatuses {
	set := make(transientStatuses, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

func (t transientStatuses) contains(status int) bool {
	_, ok := t[status]
	return ok
}

// report calls handler when status is transient
func (t transientStatuses) report(handler interfaces.TransientSignalHandler, status int, url string, headers map[string]string) {
	if handler == nil || !t.contains(status) {
		return
	}
	handler(status, url, headers)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		out[name] = strings.Join(values, ", ")
	}
	return out
}
