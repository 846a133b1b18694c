// Package results persists completed profiles to an append-only CSV file.
package results

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/models"
)

// FileName is the name of the result file inside a search directory.
const FileName = "detailed_profiles.csv"

// Header is the first row of every result file.
var Header = []string{
	"id", "full_name", "current_title", "company", "location", "education",
	"companies_worked_at", "common_interests", "custom_message", "profile_url",
}

const listSep = "; "

// Sink appends one CSV row per completed profile. Every row is flushed and
// synced to disk before Append returns, so an abrupt exit leaves a valid
// partial file.
type Sink struct {
	dir string

	mu      sync.Mutex
	file    *os.File
	w       *csv.Writer
	path    string
	written map[string]bool
	final   bool
}

// NewSink creates a sink that writes to <baseDir>/<searchID>/detailed_profiles.csv.
// Nothing touches the disk until the first Append.
func NewSink(baseDir, searchID string) *Sink {
	return &Sink{
		dir:     filepath.Join(baseDir, searchID),
		written: make(map[string]bool),
	}
}

// Append writes rec to the result file. It must be called once per profile
// transition into completed; a second call for the same id fails with
// ErrDuplicateResult and writes nothing.
func (s *Sink) Append(rec models.ProfileRecord, details *models.ProfileDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.final {
		return fmt.Errorf("append %s: sink is finalized", rec.ID)
	}
	if s.written[rec.ID] {
		return fmt.Errorf("%w: %s", faults.ErrDuplicateResult, rec.ID)
	}
	if err := s.openLocked(); err != nil {
		return err
	}

	if err := s.w.Write(Row(rec, details)); err != nil {
		return fmt.Errorf("write result row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush result row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync result file: %w", err)
	}

	s.written[rec.ID] = true
	return nil
}

func (s *Sink) openLocked() error {
	if s.file != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	path := filepath.Join(s.dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open result file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat result file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write result header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return fmt.Errorf("flush result header: %w", err)
		}
	}

	s.file = f
	s.w = w
	s.path = path
	return nil
}

// Path returns the result file path, or "" before the first write.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Count returns the number of rows written by this sink.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

// Finalize marks the sink final and closes the file. Safe to call twice.
func (s *Sink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final {
		return nil
	}
	s.final = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.w = nil
	return err
}

// IsFinal reports whether the session that owns the sink has ended.
func (s *Sink) IsFinal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

// Row renders one CSV row. Without details, the record's own fields fill the
// name, message and url columns.
func Row(rec models.ProfileRecord, d *models.ProfileDetails) []string {
	if d == nil {
		d = &models.ProfileDetails{}
	}
	name := d.FullName
	if name == "" {
		name = rec.Name
	}
	msg := d.CustomMessage
	if msg == "" {
		msg = rec.Message
	}
	url := d.ProfileURL
	if url == "" {
		url = rec.URL
	}
	return []string{
		rec.ID,
		name,
		d.CurrentTitle,
		d.Company,
		d.Location,
		strings.Join(d.Education, listSep),
		strings.Join(d.CompaniesWorkedAt, listSep),
		strings.Join(d.CommonInterests, listSep),
		msg,
		url,
	}
}

// ReadRows reads a result file back, header excluded.
func ReadRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}

// SearchID derives a filesystem-safe directory name for a search.
func SearchID(spec models.SearchSpec, now time.Time) string {
	ts := now.Format("20060102_150405")

	var id string
	if spec.Kind == models.SearchKindURL {
		u := strings.SplitN(spec.URL, "?", 2)[0]
		u = strings.TrimRight(u, "/")
		last := u[strings.LastIndex(u, "/")+1:]
		id = fmt.Sprintf("url_search_%s_%s", last, ts)
	} else {
		company := firstItem(spec.Companies, "no_company")
		title := firstItem(spec.Titles, "no_title")
		id = fmt.Sprintf("%s_%s_%s", company, title, ts)
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, id)
}

func firstItem(list, fallback string) string {
	for item := range strings.SplitSeq(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			return item
		}
	}
	return fallback
}
