package sitemap

import "errors"

// errHTTPStatus wraps any non-200 response from the portal.
var errHTTPStatus = errors.New("sitemap http error")
