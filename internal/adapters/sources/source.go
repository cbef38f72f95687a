// Package sources defines the contract every upstream client implements and
// the option decoding they share
package sources

import (
	"context"
	"strings"

	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/net/http/bind"

	"github.com/mitchellh/mapstructure"
)

// Disposition is how a resource's rows land in the destination
type Disposition string

const (
	// Merge upserts by key; a duplicate key overwrites
	Merge Disposition = "merge"
	// Append inserts rows whose synthetic key is new and ignores the rest
	Append Disposition = "append"
	// Replace swaps the whole resource in one transaction
	Replace Disposition = "replace"
)

// Resource describes one table a source produces
type Resource struct {
	Name        string
	Disposition Disposition
	// Key lists the idempotency key columns; empty means a content hash key
	Key    []string
	Schema normalize.Schema
	Cursor cursor.Policy
}

// Source is one upstream system
type Source interface {
	Name() string
	Resources() []Resource
	// Fetch returns every raw row of resource inside w, pagination resolved.
	// It never touches cursor state
	Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error)
}

// Find returns the named resource of src
func Find(src Source, name string) (Resource, bool) {
	for _, r := range src.Resources() {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// UnknownResource is the error Fetch returns for a name it does not serve
func UnknownResource(source, resource string) error {
	return perr.NotFoundf("%s: unknown resource %q", source, resource)
}

// Decode overlays kwargs onto opts (which already holds config defaults) and
// validates the result. Keys match mapstructure tags, case-insensitively.
// Validation failures surface as configuration errors
func Decode(source string, kwargs map[string]any, opts any) error {
	if len(kwargs) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		})
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeConfig, "%s: options decoder", source)
		}
		if err := dec.Decode(kwargs); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeConfig, "%s: invalid options", source)
		}
	}
	if err := bind.Validate(opts); err != nil {
		e, _ := perr.As(err)
		field := ""
		if e != nil {
			field = e.Field()
		}
		return perr.WithField(perr.Configf("%s: %s", source, strings.TrimSpace(perr.Root(err).Error())), field)
	}
	return nil
}
