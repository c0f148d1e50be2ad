package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apierrors "github.com/vegather/Disruptive-sub002/errors"
	"github.com/vegather/Disruptive-sub002/request"
)

// PagedResult is one page of T plus an optional continuation token.
// An absent nextPageToken is represented as "".
type PagedResult[T any] struct {
	Results       []T
	NextPageToken string
}

// rawPage mirrors the wire shape after the paging-key remap: the
// server's "<pagingKey>" array has already been rewritten to
// "results" by remapPagingKey before this is unmarshaled.
type rawPage[T any] struct {
	Results       []T    `json:"results"`
	NextPageToken string `json:"nextPageToken"`
}

// remapPagingKey rewrites the root object key named pagingKey to
// "results", leaving every other key's value untouched. It decodes the
// root object into a map[string]json.RawMessage, so keys this type
// doesn't know about pass through verbatim; the re-encoded object's
// keys come out in sorted order, not the original order.
func remapPagingKey(body []byte, pagingKey string) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if v, ok := raw[pagingKey]; ok && pagingKey != "results" {
		raw["results"] = v
		delete(raw, pagingKey)
	}
	return json.Marshal(raw)
}

// SendPage performs a single page of a paginated endpoint: it adds
// page_size (and page_token, if non-empty) as query params to a clone
// of req, then
// decodes the response with the pagingKey remap.
func SendPage[T any](ctx context.Context, c *Client, req request.Request, pageSize int, pageToken, pagingKey string) (PagedResult[T], error) {
	paged := req.Clone()
	paged.AddParam("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		paged.AddParam("page_token", pageToken)
	}

	body, err := c.do(ctx, paged)
	if err != nil {
		return PagedResult[T]{}, err
	}

	remapped, err := remapPagingKey(body, pagingKey)
	if err != nil {
		return PagedResult[T]{}, apierrors.Unknown(fmt.Errorf("pipeline: failed to remap paging key %q: %w", pagingKey, err))
	}

	var page rawPage[T]
	if err := json.Unmarshal(remapped, &page); err != nil {
		return PagedResult[T]{}, apierrors.Unknown(fmt.Errorf("pipeline: failed to decode page: %w", err))
	}

	return PagedResult[T]{Results: page.Results, NextPageToken: page.NextPageToken}, nil
}

// SendAll walks every page of a paginated endpoint in order, reusing
// the pipeline's authentication on each page (the token may have
// refreshed mid-walk), and concatenates their results.
func SendAll[T any](ctx context.Context, c *Client, req request.Request, pageSize int, pagingKey string) ([]T, error) {
	var all []T
	pageToken := ""
	for {
		page, err := SendPage[T](ctx, c, req, pageSize, pageToken, pagingKey)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}
