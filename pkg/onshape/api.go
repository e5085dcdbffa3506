// Package onshape provides typed access to the document-service endpoints
// the harvester needs: document search, feature lists, bounding boxes and
// the workspace/element listings used to build element links.
package onshape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/cadseq/pkg/client"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/rs/zerolog"
)

// MaxPageSize is the largest page the search endpoint serves.
const MaxPageSize = 20

// Document filters accepted by the search endpoint.
const (
	FilterMy     = "my"
	FilterPublic = "public"
)

// ErrInvalidFilter is returned for filters that are neither named nor numeric.
var ErrInvalidFilter = errors.New("invalid document filter")

// Requester sends one request to the document service. *client.Client
// implements it.
type Requester interface {
	Request(ctx context.Context, method, path string, params url.Values, body any, headers http.Header) (*http.Response, error)
}

// API wraps a Requester with typed endpoints.
type API struct {
	requester Requester
	linkBase  string
	logger    zerolog.Logger
}

// New returns an API using requester. linkBase is the host used when
// rendering element links; empty means client.DefaultBaseURL.
func New(requester Requester, linkBase string) *API {
	if requester == nil {
		panic("onshape: requester cannot be nil")
	}
	if linkBase == "" {
		linkBase = client.DefaultBaseURL
	}
	return &API{
		requester: requester,
		linkBase:  linkBase,
		logger:    logging.NewLogger(logging.ComponentSearch),
	}
}

// searchBody is the JSON body of POST /api/documents/search.
type searchBody struct {
	DocumentFilter *int   `json:"documentFilter,omitempty"`
	FoundIn        string `json:"foundIn"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
	OwnerID        string `json:"ownerId"`
	ParentID       string `json:"parentId"`
	RawQuery       string `json:"rawQuery"`
	SortColumn     string `json:"sortColumn"`
	SortOrder      string `json:"sortOrder"`
	Type           string `json:"type"`
	When           string `json:"when"`
}

// FilterValue maps "my", "public" or a numeric string to the service's
// document filter code.
func FilterValue(filter string) (int, error) {
	switch filter {
	case FilterMy, "":
		return 0, nil
	case FilterPublic:
		return 4, nil
	}
	n, err := strconv.Atoi(filter)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
	return n, nil
}

// SearchDocuments fetches one page of part-studio documents.
func (a *API) SearchDocuments(ctx context.Context, p SearchParams) (*SearchPage, error) {
	filter, err := FilterValue(p.Filter)
	if err != nil {
		return nil, err
	}

	body := searchBody{
		DocumentFilter: &filter,
		FoundIn:        "w",
		Limit:          p.Limit,
		Offset:         p.Offset,
		OwnerID:        "",
		ParentID:       "ALL",
		SortColumn:     "createdAt",
		SortOrder:      "desc",
		Type:           "string",
		When:           "latest",
	}
	if p.Query != "" {
		body.RawQuery = fmt.Sprintf("_all:%s type:partstudio", p.Query)
	}

	resp, err := a.requester.Request(ctx, http.MethodPost, "/api/documents/search", nil, body, nil)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	var page SearchPage
	if err := client.DecodeJSON(resp, &page); err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return &page, nil
}

func partStudioPath(ref ElementRef, suffix string) string {
	return fmt.Sprintf("/api/partstudios/d/%s/%s/%s/e/%s/%s",
		url.PathEscape(ref.DocumentID), ref.WVM, url.PathEscape(ref.WVMID), url.PathEscape(ref.ElementID), suffix)
}

// Features fetches the feature list of a part studio.
func (a *API) Features(ctx context.Context, ref ElementRef) (*FeatureList, error) {
	resp, err := a.requester.Request(ctx, http.MethodGet, partStudioPath(ref, "features"), nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get features %s: %w", ref, err)
	}

	var list FeatureList
	if err := client.DecodeJSON(resp, &list); err != nil {
		return nil, fmt.Errorf("get features %s: %w", ref, err)
	}
	return &list, nil
}

// BoundingBox fetches the bounds of all parts in a part studio.
func (a *API) BoundingBox(ctx context.Context, ref ElementRef) (*BoundingBox, error) {
	resp, err := a.requester.Request(ctx, http.MethodGet, partStudioPath(ref, "boundingboxes"), nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get bounding box %s: %w", ref, err)
	}

	var box BoundingBox
	if err := client.DecodeJSON(resp, &box); err != nil {
		return nil, fmt.Errorf("get bounding box %s: %w", ref, err)
	}
	return &box, nil
}

// Workspaces lists the workspaces of a document.
func (a *API) Workspaces(ctx context.Context, documentID string) ([]WorkspaceInfo, error) {
	path := fmt.Sprintf("/api/documents/%s/workspaces", url.PathEscape(documentID))
	resp, err := a.requester.Request(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get workspaces of %s: %w", documentID, err)
	}

	var workspaces []WorkspaceInfo
	if err := client.DecodeJSON(resp, &workspaces); err != nil {
		return nil, fmt.Errorf("get workspaces of %s: %w", documentID, err)
	}
	return workspaces, nil
}

// Elements lists the elements of a document state.
func (a *API) Elements(ctx context.Context, documentID string, wvm WVM, wvmID string) ([]Element, error) {
	path := fmt.Sprintf("/api/documents/d/%s/%s/%s/elements", url.PathEscape(documentID), wvm, url.PathEscape(wvmID))
	resp, err := a.requester.Request(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get elements of %s/%s/%s: %w", documentID, wvm, wvmID, err)
	}

	var elements []Element
	if err := client.DecodeJSON(resp, &elements); err != nil {
		return nil, fmt.Errorf("get elements of %s/%s/%s: %w", documentID, wvm, wvmID, err)
	}
	return elements, nil
}

// DocumentLinks returns a link for every element of every workspace of
// a document.
func (a *API) DocumentLinks(ctx context.Context, documentID string) ([]ElementRef, error) {
	workspaces, err := a.Workspaces(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var refs []ElementRef
	for _, ws := range workspaces {
		elements, err := a.Elements(ctx, documentID, Workspace, ws.ID)
		if err != nil {
			return refs, err
		}
		for _, el := range elements {
			refs = append(refs, ElementRef{
				DocumentID: documentID,
				WVM:        Workspace,
				WVMID:      ws.ID,
				ElementID:  el.ID,
			})
		}
	}

	a.logger.Debug().
		Str("document", documentID).
		Int("workspaces", len(workspaces)).
		Int("elements", len(refs)).
		Msg("Resolved document links")

	return refs, nil
}

// LinkBase returns the host used for element links.
func (a *API) LinkBase() string {
	return a.linkBase
}
