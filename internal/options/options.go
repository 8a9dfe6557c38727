// Package options parses the presentation flags an embed page accepts as
// query parameters and builds embed links carrying them.
package options

import (
	"net/url"
)

// Query parameter names.
const (
	ParamAutoReload     = "autoReload"
	ParamShowAssignment = "showAssignment"
	ParamIsScored       = "isScored"
	ParamShowEditors    = "showEditors"
	ParamShowPreview    = "showPreview"
	ParamTheme          = "theme"
	ParamData           = "data"
)

// Theme is the embed color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DisplayOptions are presentation and policy flags consumed by the embed UI.
type DisplayOptions struct {
	AutoReload     bool  `json:"autoReload"`
	ShowAssignment bool  `json:"showAssignment"`
	IsScored       bool  `json:"isScored"`
	ShowEditors    bool  `json:"showEditors"`
	ShowPreview    bool  `json:"showPreview"`
	Theme          Theme `json:"theme"`
}

// Defaults returns the options used when no parameters are given.
func Defaults() DisplayOptions {
	return DisplayOptions{
		AutoReload:     true,
		ShowAssignment: true,
		IsScored:       true,
		ShowEditors:    true,
		ShowPreview:    true,
		Theme:          ThemeDark,
	}
}

// Parse reads DisplayOptions from query parameters. Boolean flags are on
// unless the parameter is exactly "false"; theme is light only when the
// parameter is exactly "light". Parse never fails.
func Parse(params url.Values) DisplayOptions {
	theme := ThemeDark
	if params.Get(ParamTheme) == string(ThemeLight) {
		theme = ThemeLight
	}
	return DisplayOptions{
		AutoReload:     enabled(params, ParamAutoReload),
		ShowAssignment: enabled(params, ParamShowAssignment),
		IsScored:       enabled(params, ParamIsScored),
		ShowEditors:    enabled(params, ParamShowEditors),
		ShowPreview:    enabled(params, ParamShowPreview),
		Theme:          theme,
	}
}

func enabled(params url.Values, name string) bool {
	return params.Get(name) != "false"
}

// Token returns the embed token carried in params, if any.
func Token(params url.Values) string {
	return params.Get(ParamData)
}

// Query encodes o, emitting only the values that differ from Defaults.
// Parse(o.Query()) == o for every o.
func (o DisplayOptions) Query() url.Values {
	q := url.Values{}
	flags := []struct {
		name string
		on   bool
	}{
		{ParamAutoReload, o.AutoReload},
		{ParamShowAssignment, o.ShowAssignment},
		{ParamIsScored, o.IsScored},
		{ParamShowEditors, o.ShowEditors},
		{ParamShowPreview, o.ShowPreview},
	}
	for _, f := range flags {
		if !f.on {
			q.Set(f.name, "false")
		}
	}
	if o.Theme == ThemeLight {
		q.Set(ParamTheme, string(ThemeLight))
	}
	return q
}
