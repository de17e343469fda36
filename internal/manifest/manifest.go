// Package manifest resolves a batch manifest CSV into the ordered item
// descriptors a batch run iterates over. Structural problems in the manifest
// are batch-fatal: they are reported before any item executes.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"kitchen/internal/services"
)

// Media types recognized in the optional media_type manifest column.
const (
	MediaTypeMovingImage = "Moving Image"
	MediaTypeSound       = "Sound"
)

// Item describes one asset from the batch manifest. Ordinal is the 1-based
// row position and establishes the slicing order for the whole batch.
type Item struct {
	Ordinal       int
	AssetID       string
	MediaFilename string
	SonyCiID      string
	MediaType     string
}

// Remote reports whether the item's media must be fetched from SonyCi
// rather than read from a pre-local file.
func (i Item) Remote() bool {
	return i.MediaFilename == "" && i.SonyCiID != ""
}

// Resolve reads and validates the manifest file at path.
func Resolve(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "resolve",
			"open batch manifest", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse resolves manifest rows from r. The first row is the header; the
// asset_id column is required and at least one of media_filename / sonyci_id
// must be present. Column order is not significant and unknown columns are
// ignored.
func Parse(r io.Reader) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
				"batch manifest is empty", nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
			"read manifest header", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name != "" {
			columns[name] = i
		}
	}
	assetCol, ok := columns["asset_id"]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
			"batch manifest has no asset_id column", nil)
	}
	fileCol, hasFileCol := columns["media_filename"]
	ciCol, hasCiCol := columns["sonyci_id"]
	if !hasFileCol && !hasCiCol {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
			"batch manifest needs a media_filename or sonyci_id column", nil)
	}
	typeCol, hasTypeCol := columns["media_type"]

	field := func(record []string, col int, present bool) string {
		if !present || col >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[col])
	}

	var items []Item
	seen := make(map[string]int)
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
				fmt.Sprintf("read manifest row %d", row+1), err)
		}
		row++
		if blankRecord(record) {
			continue
		}

		item := Item{
			Ordinal:       len(items) + 1,
			AssetID:       field(record, assetCol, true),
			MediaFilename: field(record, fileCol, hasFileCol),
			SonyCiID:      field(record, ciCol, hasCiCol),
			MediaType:     normalizeMediaType(field(record, typeCol, hasTypeCol)),
		}
		if item.AssetID == "" {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
				fmt.Sprintf("row %d has an empty asset_id", row), nil)
		}
		if prior, dup := seen[item.AssetID]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
				fmt.Sprintf("asset %q appears in rows %d and %d", item.AssetID, prior, row), nil)
		}
		if item.MediaFilename == "" && item.SonyCiID == "" {
			return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
				fmt.Sprintf("asset %q (row %d) has neither media_filename nor sonyci_id", item.AssetID, row), nil)
		}
		seen[item.AssetID] = row
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "parse",
			"batch manifest has no item rows", nil)
	}
	return items, nil
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func normalizeMediaType(value string) string {
	switch strings.ToLower(strings.ReplaceAll(value, "_", " ")) {
	case "moving image", "movingimage", "video":
		return MediaTypeMovingImage
	case "sound", "audio":
		return MediaTypeSound
	case "":
		return ""
	default:
		// Unrecognized types pass through with display casing intact.
		return cases.Title(language.Und).String(strings.ReplaceAll(value, "_", " "))
	}
}
