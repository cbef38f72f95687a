// Package catalog builds the configured source client for each SourceName
package catalog

import (
	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/everflow"
	"signalroom/internal/adapters/sources/mautic"
	"signalroom/internal/adapters/sources/posthog"
	"signalroom/internal/adapters/sources/redtrack"
	"signalroom/internal/adapters/sources/s3exports"
	"signalroom/internal/adapters/sources/sheets"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/services/sync/domain"
)

// Catalog reads each source's options from the environment, layers the
// caller's kwargs on top and validates the result
type Catalog struct {
	cfg config.Conf
}

// New returns a Catalog over cfg
func New(cfg config.Conf) *Catalog { return &Catalog{cfg: cfg} }

// Open satisfies domain.Catalog
func (c *Catalog) Open(name domain.SourceName, kwargs map[string]any) (sources.Source, error) {
	switch name {
	case domain.Everflow:
		o := everflow.FromConfig(c.cfg)
		if err := sources.Decode(everflow.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return everflow.New(o), nil
	case domain.Redtrack:
		o := redtrack.FromConfig(c.cfg)
		if err := sources.Decode(redtrack.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return redtrack.New(o), nil
	case domain.S3Exports:
		o := s3exports.FromConfig(c.cfg)
		if err := sources.Decode(s3exports.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return s3exports.New(o), nil
	case domain.PostHog:
		o := posthog.FromConfig(c.cfg)
		if err := sources.Decode(posthog.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return posthog.New(o), nil
	case domain.Mautic:
		o := mautic.FromConfig(c.cfg)
		if err := sources.Decode(mautic.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return mautic.New(o), nil
	case domain.GoogleSheets:
		o := sheets.FromConfig(c.cfg)
		if err := sources.Decode(sheets.Name, kwargs, &o); err != nil {
			return nil, err
		}
		return sheets.New(o), nil
	}
	return nil, perr.InvalidArgf("unknown source %q", name)
}

// Description is a source's configured resources, or why it cannot run
type Description struct {
	Source    domain.SourceName `json:"source"`
	Ready     bool              `json:"ready"`
	Problem   string            `json:"problem,omitempty"`
	Resources []ResourceInfo    `json:"resources"`
}

// ResourceInfo is the static shape of one resource
type ResourceInfo struct {
	Name        string              `json:"name"`
	Disposition sources.Disposition `json:"disposition"`
	Key         []string            `json:"key"`
	Cursor      string              `json:"cursor"`
}

// Describe reports every known source, ready or not
func (c *Catalog) Describe() []Description {
	out := make([]Description, 0, len(domain.AllSources))
	for _, n := range domain.AllSources {
		d := Description{Source: n, Ready: true}
		src, err := c.Open(n, nil)
		if err != nil {
			d.Ready, d.Problem = false, perr.Root(err).Error()
		} else {
			for _, r := range src.Resources() {
				d.Resources = append(d.Resources, ResourceInfo{
					Name:        r.Name,
					Disposition: r.Disposition,
					Key:         r.Key,
					Cursor:      r.Cursor.Kind.String(),
				})
			}
		}
		out = append(out, d)
	}
	return out
}
