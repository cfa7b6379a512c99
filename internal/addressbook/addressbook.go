// Package addressbook reads the people of the device address book.
package addressbook

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"

	"github.com/matheus3301/gravvy/internal/importer"
	"github.com/matheus3301/gravvy/internal/remote"
)

// Person is one address-book entry. Phones are stored as typed by the
// user; the importer normalizes them.
type Person struct {
	RecordID  string   `json:"record_id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phones    []string `json:"phones"`
}

// Record converts the person to the record shape the contact importer
// reads.
func (p Person) Record() remote.Record {
	phones := make([]any, len(p.Phones))
	for i, ph := range p.Phones {
		phones[i] = ph
	}
	return remote.Record{
		importer.FieldRecordID:  p.RecordID,
		importer.FieldFirstName: p.FirstName,
		importer.FieldLastName:  p.LastName,
		importer.FieldPhones:    phones,
	}
}

// Source lists the current address book.
type Source interface {
	People(ctx context.Context) ([]Person, error)
}

// FileSource reads a JSON export: an array of people.
type FileSource struct {
	Path string
}

// People reads the export. A missing file is an empty address book.
func (s FileSource) People(ctx context.Context) ([]Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	var people []Person
	if err := json.Unmarshal(data, &people); err != nil {
		return nil, fmt.Errorf("decode address book %s: %w", s.Path, err)
	}
	out := people[:0]
	for _, p := range people {
		if p.RecordID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Records converts people to records.
func Records(people []Person) []remote.Record {
	out := make([]remote.Record, len(people))
	for i, p := range people {
		out[i] = p.Record()
	}
	return out
}
