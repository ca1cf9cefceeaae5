package directory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrInvalidCoordinates is returned for a lat or lng that is not a number in range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// FieldType describes how a listing column is interpreted.
type FieldType int

const (
	FieldText FieldType = iota
	FieldFloat
	FieldList
)

// FieldSpec describes one recognized CSV column.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// ListingFieldSpecs lists the columns the directory importer understands.
// Unknown columns are ignored.
var ListingFieldSpecs = []FieldSpec{
	{Name: "title", Type: FieldText, Required: true},
	{Name: "external_id", Type: FieldText},
	{Name: "description", Type: FieldText},
	{Name: "address", Type: FieldText},
	{Name: "city", Type: FieldText},
	{Name: "state", Type: FieldText},
	{Name: "zip", Type: FieldText},
	{Name: "phone", Type: FieldText},
	{Name: "website", Type: FieldText},
	{Name: "email", Type: FieldText},
	{Name: "category", Type: FieldList},
	{Name: "image_url", Type: FieldText},
	{Name: "lat", Type: FieldFloat},
	{Name: "lng", Type: FieldFloat},
}

// Listing is one business directory entry.
type Listing struct {
	ID          int64
	ExternalID  string
	Title       string
	Description string
	Address     string
	City        string
	State       string
	Zip         string
	Phone       string
	Website     string
	Email       string
	ImageURL    string
	Lat         pgtype.Float8
	Lng         pgtype.Float8
	Categories  []string
}

// ListingFromRow builds a Listing from a parsed CSV row.
func ListingFromRow(row core.Row) (Listing, error) {
	l := Listing{
		ExternalID:  row.Get("external_id"),
		Title:       row.Get("title"),
		Description: row.Get("description"),
		Address:     row.Get("address"),
		City:        row.Get("city"),
		State:       row.Get("state"),
		Zip:         row.Get("zip"),
		Phone:       row.Get("phone"),
		Website:     row.Get("website"),
		Email:       row.Get("email"),
		ImageURL:    row.Get("image_url"),
		Categories:  SplitCategories(row.Get("category")),
	}

	for _, spec := range ListingFieldSpecs {
		if spec.Required && row.Get(spec.Name) == "" {
			return Listing{}, fmt.Errorf("missing required field (%s)", spec.Name)
		}
	}

	var err error
	if l.Lat, err = parseCoordinate(row.Get("lat"), 90); err != nil {
		return Listing{}, err
	}
	if l.Lng, err = parseCoordinate(row.Get("lng"), 180); err != nil {
		return Listing{}, err
	}

	return l, nil
}

// SplitCategories splits a comma separated category cell, dropping blanks
// and duplicates while keeping first-seen order.
func SplitCategories(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out
}

// ColumnNames returns the recognized column names in display order.
func ColumnNames() []string {
	names := make([]string, len(ListingFieldSpecs))
	for i, spec := range ListingFieldSpecs {
		names[i] = spec.Name
	}
	return names
}

// parseCoordinate returns a NULL Float8 for an empty cell.
func parseCoordinate(s string, limit float64) (pgtype.Float8, error) {
	if s == "" {
		return pgtype.Float8{Valid: false}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < -limit || f > limit {
		return pgtype.Float8{}, ErrInvalidCoordinates
	}
	return pgtype.Float8{Float64: f, Valid: true}, nil
}

// toPgText maps an empty string to NULL.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
