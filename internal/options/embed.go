package options

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Hash routes served by the embed front end.
const (
	RouteEmbed  = "/#/embed/custom"
	RouteCreate = "/#/embed/create"
)

// EmbedURL returns the link that opens an assignment token with the given
// display options.
func EmbedURL(base, token string, o DisplayOptions) string {
	q := o.Query()
	q.Set(ParamData, token)
	return strings.TrimRight(base, "/") + RouteEmbed + "?" + q.Encode()
}

// EditURL returns the link that opens a token in the authoring page.
func EditURL(base, token string) string {
	q := url.Values{}
	q.Set(ParamData, token)
	return strings.TrimRight(base, "/") + RouteCreate + "?" + q.Encode()
}

// IframeHTML wraps src in the iframe snippet authors paste into their pages.
func IframeHTML(src string) string {
	return fmt.Sprintf(`<iframe src="%s" style="width: 100%%; height: 600px; border: none;"></iframe>`, html.EscapeString(src))
}
