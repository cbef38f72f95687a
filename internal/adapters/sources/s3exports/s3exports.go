// Package s3exports reads CSV and XLSX drops from S3 prefixes, one resource
// per prefix, tracking progress by the date embedded in object keys
package s3exports

import (
	"context"
	"io"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"github.com/xuri/excelize/v2"
)

// Name is the source name
const Name = "s3_exports"

// InitialDate is the first-run file date
const InitialDate = "2025-12-18"

// Metadata columns stamped on every row
const (
	ColFileName = "_file_name"
	ColFileDate = "_file_date"
	ColRowID    = "_row_id"
)

// Options configures the source
type Options struct {
	Bucket      string   `mapstructure:"bucket" validate:"required"`
	Prefixes    []string `mapstructure:"prefixes" validate:"min=1,dive,required"`
	MaxFiles    int      `mapstructure:"max_files" validate:"min=0"`
	Region      string   `mapstructure:"region"`
	Endpoint    string   `mapstructure:"endpoint" validate:"omitempty,url"`
	InitialDate string   `mapstructure:"initial_date" validate:"required,isodate"`

	Objects Objects `mapstructure:"-"`
}

// FromConfig reads S3_* and AWS_REGION
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("S3_")
	return Options{
		Bucket:      c.MayString("BUCKET_NAME", ""),
		Prefixes:    c.MayCSV("PREFIXES", nil),
		MaxFiles:    c.MayInt("MAX_FILES", 0),
		Region:      cfg.MayString("AWS_REGION", "us-east-1"),
		Endpoint:    c.MayString("ENDPOINT", ""),
		InitialDate: c.MayString("INITIAL_DATE", InitialDate),
	}
}

// Source is the S3 drop reader
type Source struct {
	opts     Options
	prefixes map[string]string // resource name -> prefix

	once    sync.Once
	objects Objects
	objErr  error
}

// New builds the source; the S3 client is created on first fetch
func New(opts Options) *Source {
	s := &Source{opts: opts, prefixes: map[string]string{}, objects: opts.Objects}
	for _, p := range opts.Prefixes {
		if name := sources.TableName(p); name != "" {
			s.prefixes[name] = strings.Trim(p, "/")
		}
	}
	return s
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var drop = normalize.Schema{
	Fields: []normalize.Field{
		{Name: ColFileName, Kind: normalize.KindRaw},
		{Name: ColRowID, Kind: normalize.KindInt},
		{Name: ColFileDate, Kind: normalize.KindRaw},
	},
	Keys:        []string{ColFileName, ColRowID},
	Passthrough: true,
}

// Resources satisfies sources.Source, in prefix order
func (s *Source) Resources() []sources.Resource {
	out := make([]sources.Resource, 0, len(s.prefixes))
	for _, p := range s.opts.Prefixes {
		name := sources.TableName(p)
		if name == "" || slices.ContainsFunc(out, func(r sources.Resource) bool { return r.Name == name }) {
			continue
		}
		out = append(out, sources.Resource{
			Name:        name,
			Disposition: sources.Append,
			Key:         drop.Keys,
			Schema:      drop,
			Cursor: cursor.Policy{
				Kind:    cursor.KindFileDate,
				Field:   ColFileDate,
				Initial: s.opts.InitialDate,
				End:     cursor.EndToday,
			},
		})
	}
	return out
}

var keyDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

type file struct {
	key  string
	date string
}

// Fetch satisfies sources.Source. Files dated on or after w.Start, or with no
// date in their key, are read; MaxFiles keeps the most recent keys
func (s *Source) Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error) {
	prefix, ok := s.prefixes[resource]
	if !ok {
		return nil, sources.UnknownResource(Name, resource)
	}
	objs, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.C(ctx).With().Str("prefix", prefix).Logger()

	listed, err := objs.List(ctx, s.opts.Bucket, prefix+"/")
	if err != nil {
		return nil, err
	}
	var files []file
	for _, o := range listed {
		ext := strings.ToLower(path.Ext(o.Key))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		d := keyDate.FindString(path.Base(o.Key))
		if d == "" || w.Start == "" || d >= w.Start {
			files = append(files, file{key: o.Key, date: d})
		}
	}
	slices.SortFunc(files, func(a, b file) int { return strings.Compare(a.key, b.key) })
	if s.opts.MaxFiles > 0 && len(files) > s.opts.MaxFiles {
		files = files[len(files)-s.opts.MaxFiles:]
	}
	log.Info().Int("listed", len(listed)).Int("selected", len(files)).Str("since", w.Start).Msg("s3 files selected")

	var out []normalize.RawRow
	for _, f := range files {
		rows, err := s.read(ctx, objs, f)
		if err != nil {
			log.Error().Err(err).Str("key", f.key).Msg("file processing failed")
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Source) client(ctx context.Context) (Objects, error) {
	s.once.Do(func() {
		if s.objects == nil {
			s.objects, s.objErr = NewS3(ctx, s.opts.Region, s.opts.Endpoint)
		}
	})
	return s.objects, s.objErr
}

func (s *Source) read(ctx context.Context, objs Objects, f file) ([]normalize.RawRow, error) {
	rc, err := objs.Open(ctx, s.opts.Bucket, f.key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var records [][]string
	if strings.EqualFold(path.Ext(f.key), ".xlsx") {
		records, err = readXLSX(rc)
	} else {
		records, err = sources.ReadCSV(rc)
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "s3_exports: parse %s", f.key)
	}
	if len(records) == 0 {
		return nil, nil
	}

	name := "s3://" + s.opts.Bucket + "/" + f.key
	var fileDate any
	if f.date != "" {
		fileDate = f.date
	}
	rows := sources.Records(records, ColRowID)
	for _, row := range rows {
		row[ColFileName] = name
		row[ColFileDate] = fileDate
	}
	return rows, nil
}

// readXLSX returns the rows of the first sheet
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}
