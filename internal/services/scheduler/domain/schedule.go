// Package domain defines calendar schedules and their store port
package domain

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"io"
	"slices"

	"signalroom/internal/adapters/notify"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/net/http/bind"
	syncdom "signalroom/internal/services/sync/domain"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Kind is what a schedule fires
type Kind string

// Schedule kinds
const (
	KindSync   Kind = "sync"
	KindReport Kind = "report"
)

// Schedule is one calendar entry. Cron specs are evaluated in UTC
type Schedule struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Kind        Kind   `yaml:"kind" json:"kind" validate:"required,oneof=sync report"`
	Cron        string `yaml:"cron" json:"cron" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Sources are swept in order for sync schedules
	Sources  []string `yaml:"sources,omitempty" json:"sources,omitempty" validate:"required_if=Kind sync"`
	ClientID string   `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	// NotifyOnFailure sends one consolidated message per sweep; default true
	NotifyOnFailure *bool `yaml:"notify_on_failure,omitempty" json:"notify_on_failure,omitempty"`

	Report  string         `yaml:"report,omitempty" json:"report,omitempty" validate:"required_if=Kind report"`
	Channel notify.Channel `yaml:"channel,omitempty" json:"channel,omitempty" validate:"omitempty,oneof=slack email sms"`
	Send    bool           `yaml:"send,omitempty" json:"send,omitempty"`

	Paused bool `yaml:"paused,omitempty" json:"paused,omitempty"`
}

// NotifyFailure resolves the default
func (s Schedule) NotifyFailure() bool { return s.NotifyOnFailure == nil || *s.NotifyOnFailure }

// Parser reads five-field cron specs and descriptors
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks tags, the cron spec and source names
func (s Schedule) Validate() error {
	if err := bind.Validate(s); err != nil {
		return perr.WithOp(err, s.ID)
	}
	if _, err := Parser.Parse(s.Cron); err != nil {
		return perr.WithOp(perr.WithField(perr.Newf(perr.ErrorCodeValidation, "bad cron %q: %v", s.Cron, err), "cron"), s.ID)
	}
	for _, src := range s.Sources {
		if _, err := syncdom.ParseSource(src); err != nil {
			return perr.WithOp(err, s.ID)
		}
	}
	return nil
}

// File is the YAML layout of a schedule set
type File struct {
	Schedules []Schedule `yaml:"schedules" json:"schedules"`
}

// Parse decodes and validates a YAML schedule set; ids must be unique
func Parse(r io.Reader) ([]Schedule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, perr.Newf(perr.ErrorCodeValidation, "schedule file: %v", err)
	}
	seen := map[string]bool{}
	for _, s := range f.Schedules {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.ID] {
			return nil, perr.WithField(perr.Newf(perr.ErrorCodeValidation, "duplicate schedule %q", s.ID), "id")
		}
		seen[s.ID] = true
	}
	return f.Schedules, nil
}

// ParseBytes is Parse over b
func ParseBytes(b []byte) ([]Schedule, error) { return Parse(bytes.NewReader(b)) }

// Merge layers stored schedules over defaults by id; the result is sorted by id
func Merge(defaults, stored []Schedule) []Schedule {
	byID := make(map[string]Schedule, len(defaults)+len(stored))
	for _, s := range defaults {
		byID[s.ID] = s
	}
	for _, s := range stored {
		byID[s.ID] = s
	}
	out := make([]Schedule, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Schedule) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Store persists operator-applied schedules
type Store interface {
	List(ctx context.Context) ([]Schedule, error)
	Apply(ctx context.Context, s ...Schedule) error
	Delete(ctx context.Context, id string) error
}
