// Package codec turns an assignment definition into a compact URL-safe token
// and back. Decoding merges the token's fields over a template, field by
// field, and keeps keys it does not recognise so newer producers can add
// fields without older consumers dropping them.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chis/embedlab/internal/vfs"
)

// JSON keys of the wire format.
const (
	KeyTitle       = "title"
	KeyAssignment  = "assignment"
	KeyMaxScore    = "maxScore"
	KeyFiles       = "files"
	KeyMainFile    = "mainFile"
	KeyPreviewType = "previewType"
)

// Assignment is the exercise definition carried inside an embed token.
type Assignment struct {
	Title       string
	Assignment  string // HTML description
	MaxScore    int
	Files       []vfs.FileRecord
	MainFile    string
	PreviewType string

	// Extra holds top-level keys outside the fields above, verbatim.
	Extra map[string]json.RawMessage
}

func isKnownKey(key string) bool {
	switch key {
	case KeyTitle, KeyAssignment, KeyMaxScore, KeyFiles, KeyMainFile, KeyPreviewType:
		return true
	}
	return false
}

// MarshalJSON writes the known fields followed by any extra keys.
func (a Assignment) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(a.Extra)+6)
	for k, v := range a.Extra {
		if !isKnownKey(k) {
			obj[k] = v
		}
	}

	files := a.Files
	if files == nil {
		files = []vfs.FileRecord{}
	}
	obj[KeyTitle] = a.Title
	obj[KeyAssignment] = a.Assignment
	obj[KeyMaxScore] = a.MaxScore
	obj[KeyFiles] = files
	obj[KeyMainFile] = a.MainFile
	obj[KeyPreviewType] = a.PreviewType

	return json.Marshal(obj)
}

// UnmarshalJSON merges a JSON object into a. Keys present in data overwrite
// the corresponding field (null resets it to the zero value); keys absent
// from data leave the field untouched; unknown keys are stored in Extra.
//
// A known key whose value has the wrong shape keeps the current field value
// and is parked in Extra under its own name, where Warnings reports it.
// MarshalJSON never writes such entries back out.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	for key, raw := range obj {
		var err error
		switch key {
		case KeyTitle:
			err = decodeField(raw, &a.Title)
		case KeyAssignment:
			err = decodeField(raw, &a.Assignment)
		case KeyMaxScore:
			err = decodeScore(raw, &a.MaxScore)
		case KeyFiles:
			err = decodeField(raw, &a.Files)
		case KeyMainFile:
			err = decodeField(raw, &a.MainFile)
		case KeyPreviewType:
			err = decodeField(raw, &a.PreviewType)
		default:
			a.setExtra(key, raw)
			continue
		}
		if err != nil {
			a.setExtra(key, raw)
		} else if a.Extra != nil {
			delete(a.Extra, key)
		}
	}
	return nil
}

func (a *Assignment) setExtra(key string, raw json.RawMessage) {
	if a.Extra == nil {
		a.Extra = make(map[string]json.RawMessage)
	}
	a.Extra[key] = append(json.RawMessage(nil), raw...)
}

// Rejected returns the known keys whose decoded values had the wrong shape,
// sorted.
func (a Assignment) Rejected() []string {
	var keys []string
	for k := range a.Extra {
		if isKnownKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeField[T any](raw json.RawMessage, dst *T) error {
	var v T
	if isNull(raw) {
		*dst = v
		return nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeScore accepts any JSON number with an integral value.
func decodeScore(raw json.RawMessage, dst *int) error {
	if isNull(raw) {
		*dst = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("score %v is not an integer", f)
	}
	*dst = int(f)
	return nil
}

// Clone returns a deep copy.
func (a Assignment) Clone() Assignment {
	out := a
	if a.Files != nil {
		out.Files = make([]vfs.FileRecord, len(a.Files))
		copy(out.Files, a.Files)
	}
	if a.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// HasFile reports whether filename is among the files.
func (a Assignment) HasFile(filename string) bool {
	for _, f := range a.Files {
		if f.Filename == filename {
			return true
		}
	}
	return false
}

// Validation errors returned (joined) by Validate.
var (
	ErrNoFiles          = errors.New("assignment has no files")
	ErrDuplicateFile    = errors.New("duplicate filename")
	ErrMainFileMissing  = errors.New("main file is not among the files")
	ErrNegativeMaxScore = errors.New("max score must not be negative")
)

// Validate checks the producer-side invariants. Decode never calls it.
func (a Assignment) Validate() error {
	var errs []error

	if len(a.Files) == 0 {
		errs = append(errs, ErrNoFiles)
	}
	seen := make(map[string]bool, len(a.Files))
	for _, f := range a.Files {
		if seen[f.Filename] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateFile, f.Filename))
		}
		seen[f.Filename] = true
	}
	if len(a.Files) > 0 && !seen[a.MainFile] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrMainFileMissing, a.MainFile))
	}
	if a.MaxScore < 0 {
		errs = append(errs, ErrNegativeMaxScore)
	}

	return errors.Join(errs...)
}

// Warnings returns rejected fields followed by Validate's findings as
// strings, or nil.
func (a Assignment) Warnings() []string {
	var out []string
	for _, key := range a.Rejected() {
		out = append(out, fmt.Sprintf("field %q has an unexpected value %s, previous value kept", key, a.Extra[key]))
	}

	err := a.Validate()
	if err == nil {
		return out
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return append(out, err.Error())
}

// Encode serializes an assignment into an embed token.
func Encode(a Assignment) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode assignment: %w", err)
	}
	return EncodeURLSafe(string(data)), nil
}

// Decode parses a token and merges it over template, which is not modified.
// Cross-field invariants are not checked.
func Decode(token string, template Assignment) (Assignment, error) {
	text, err := DecodeURLSafe(token)
	if err != nil {
		return Assignment{}, &DecodeError{Stage: StageToken, Err: err}
	}

	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Assignment{}, &DecodeError{Stage: StageJSON, Err: errors.New("payload is not a JSON object")}
	}

	out := template.Clone()
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return Assignment{}, &DecodeError{Stage: StageJSON, Err: err}
	}
	return out, nil
}
