// Package catalog reads the portal's directory listing and selects the
// archives a fetch pass works on.
package catalog

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/internal/domain/util"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// Reader lists catalog entries through an authenticated portal session.
type Reader struct {
	portal  domain.PortalClient
	suffix  string
	allow   AllowList
	logger  types.Logger
	metrics types.Metrics
}

// NewReader creates a catalog reader keeping entries whose url ends with
// suffix and whose entity is in allow.
func NewReader(portal domain.PortalClient, suffix string, allow AllowList, logger types.Logger, metrics types.Metrics) *Reader {
	return &Reader{
		portal:  portal,
		suffix:  suffix,
		allow:   allow,
		logger:  logger,
		metrics: metrics,
	}
}

// Query returns the catalog query parameters for organism.
func Query(organism string) url.Values {
	return url.Values{"organism": {organism}}
}

// ListTargets fetches the directory listing and returns the matching
// entries in document order. An empty WorkList is not an error.
func (r *Reader) ListTargets(ctx context.Context, query url.Values) (domain.WorkList, error) {
	r.metrics.StartOperation("list_targets")
	defer r.metrics.EndOperation("list_targets")
	start := time.Now()
	defer func() {
		r.metrics.RecordDuration("list_targets", time.Since(start).Seconds())
	}()

	r.logger.Info(ctx, "Fetching catalog", types.Fields{"query": query.Encode()})

	body, err := r.portal.GetCatalog(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.metrics.RecordError("list_targets", "fetch")
		r.logger.Error(ctx, "Failed to fetch catalog", err, nil)
		return nil, domain.NewDomainError(domain.ErrCatalogFetch.Code, domain.ErrCatalogFetch.Message, err, true)
	}
	defer body.Close()

	worklist, err := Parse(ctx, body, r.suffix, r.allow, r.logger)
	if err != nil {
		errorType := "parse"
		if errors.Is(err, domain.ErrMalformedName) {
			errorType = "malformed_name"
		}
		r.metrics.RecordError("list_targets", errorType)
		r.logger.Error(ctx, "Failed to read catalog", err, nil)
		return nil, err
	}

	r.metrics.RecordSuccess("list_targets")
	r.logger.Info(ctx, "Catalog listed", types.Fields{
		"targets": len(worklist),
		"suffix":  r.suffix,
	})

	return worklist, nil
}

// Parse stream-decodes a directory listing. Every element named "file",
// at any depth, is a candidate entry. Entries without a url are ignored;
// entries without an md5 cannot be verified and are skipped with a warning.
// A matching entry whose name does not yield an entity identifier fails the
// whole parse.
func Parse(ctx context.Context, r io.Reader, suffix string, allow AllowList, logger types.Logger) (domain.WorkList, error) {
	decoder := xml.NewDecoder(r)

	worklist := domain.WorkList{}
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCatalogParse.Code, domain.ErrCatalogParse.Message, err, false)
		}

		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "file" {
			continue
		}

		remotePath, checksum := attr(el, "url"), attr(el, "md5")
		if remotePath == "" || !strings.HasSuffix(remotePath, suffix) {
			continue
		}

		name := util.LocalFilename(remotePath)
		entity, err := util.EntityIdentifier(name)
		if err != nil {
			return nil, err
		}
		if !allow.Contains(entity) {
			continue
		}

		if checksum == "" {
			logger.Warn(ctx, "Catalog entry has no md5, skipping", types.Fields{
				"url":    remotePath,
				"entity": entity,
			})
			continue
		}

		worklist = append(worklist, domain.RemoteEntry{
			RemotePath:       remotePath,
			ExpectedChecksum: strings.ToLower(strings.TrimSpace(checksum)),
			LocalFilename:    name,
			Entity:           entity,
		})
	}

	return worklist, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

