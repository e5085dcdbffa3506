package onshape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocator is returned when a locator has too few path segments.
var ErrInvalidLocator = errors.New("invalid element locator")

// WVM selects which state of a document an element is read from.
type WVM string

const (
	Workspace    WVM = "w"
	Version      WVM = "v"
	Microversion WVM = "m"
)

// ElementRef addresses one element (tab) of a document.
type ElementRef struct {
	DocumentID string
	WVM        WVM
	WVMID      string
	ElementID  string
}

// ParseLocator decodes a locator of the form
// ".../d/{document}/w/{workspace}/e/{element}" (or "documents/{document}/...").
// Only the 5th-from-last, 4th-from-last, 3rd-from-last and last segments
// are read.
func ParseLocator(locator string) (ElementRef, error) {
	segments := strings.Split(strings.TrimRight(locator, "/"), "/")
	n := len(segments)
	if n < 5 {
		return ElementRef{}, fmt.Errorf("%w: %q has %d segments, need at least 5", ErrInvalidLocator, locator, n)
	}

	ref := ElementRef{
		DocumentID: segments[n-5],
		WVM:        WVM(segments[n-4]),
		WVMID:      segments[n-3],
		ElementID:  segments[n-1],
	}

	switch ref.WVM {
	case Workspace, Version, Microversion:
	default:
		// Locators only guarantee the identifier positions.
		ref.WVM = Workspace
	}

	if ref.DocumentID == "" || ref.WVMID == "" || ref.ElementID == "" {
		return ElementRef{}, fmt.Errorf("%w: %q has empty identifiers", ErrInvalidLocator, locator)
	}
	return ref, nil
}

// Link renders the canonical browser link for ref.
func (r ElementRef) Link(baseURL string) string {
	return fmt.Sprintf("%s/documents/%s/%s/%s/e/%s",
		strings.TrimRight(baseURL, "/"), r.DocumentID, r.WVM, r.WVMID, r.ElementID)
}

// String implements fmt.Stringer.
func (r ElementRef) String() string {
	return fmt.Sprintf("d/%s/%s/%s/e/%s", r.DocumentID, r.WVM, r.WVMID, r.ElementID)
}
