// Package mmif inspects and fabricates MMIF annotation documents. Only the
// handful of facts the orchestration engine cares about are modelled: whether
// a file exists, whether it parses, whether it carries views, and whether any
// view recorded an app error.
package mmif

import (
	"encoding/json"
	"os"
	"strings"
)

const mmifVersion = "http://mmif.clams.ai/1.0.4"

// ContainerMediaDir is where stage containers see the media directory; blank
// document locations are written relative to it.
const ContainerMediaDir = "/data"

// Status captures the outcome of inspecting one MMIF file.
type Status struct {
	Exists     bool
	Valid      bool
	Blank      bool
	ErrorViews bool
}

// Usable reports whether the file can serve as a stage input or be trusted
// as a completed stage output.
func (s Status) Usable() bool {
	return s.Exists && s.Valid && !s.ErrorViews
}

// Laden reports whether the document carries at least one view.
func (s Status) Laden() bool {
	return s.Exists && s.Valid && !s.Blank
}

func (s Status) String() string {
	if !s.Exists {
		return "absent"
	}
	parts := []string{"exists"}
	if !s.Valid {
		return strings.Join(append(parts, "invalid"), " ")
	}
	parts = append(parts, "valid")
	if s.Blank {
		parts = append(parts, "blank")
	} else {
		parts = append(parts, "laden")
	}
	if s.ErrorViews {
		parts = append(parts, "error-views")
	}
	return strings.Join(parts, " ")
}

type document struct {
	Metadata struct {
		MMIF string `json:"mmif"`
	} `json:"metadata"`
	Views []struct {
		Metadata map[string]json.RawMessage `json:"metadata"`
	} `json:"views"`
}

// Check inspects the MMIF file at path.
func Check(path string) Status {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}
	}
	return CheckBytes(data)
}

// CheckBytes inspects serialized MMIF content.
func CheckBytes(data []byte) Status {
	status := Status{Exists: true}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc.Metadata.MMIF == "" {
		return status
	}
	status.Valid = true
	if len(doc.Views) == 0 {
		status.Blank = true
		return status
	}
	for _, view := range doc.Views {
		if _, ok := view.Metadata["error"]; ok {
			status.ErrorViews = true
			break
		}
	}
	return status
}

type blankDocument struct {
	Metadata struct {
		MMIF string `json:"mmif"`
	} `json:"metadata"`
	Documents []blankMedia `json:"documents"`
	Views     []struct{}   `json:"views"`
}

type blankMedia struct {
	Type       string `json:"@type"`
	Properties struct {
		MIME     string `json:"mime"`
		ID       string `json:"id"`
		Location string `json:"location"`
	} `json:"properties"`
}

// NewBlank fabricates a viewless MMIF document referencing the media file by
// its container-visible location. mime is "video" or "audio".
func NewBlank(mediaFilename, mime string) ([]byte, error) {
	var doc blankDocument
	doc.Metadata.MMIF = mmifVersion
	media := blankMedia{Type: "http://mmif.clams.ai/vocabulary/VideoDocument/v1"}
	media.Properties.MIME = mime
	media.Properties.ID = "m1"
	media.Properties.Location = "file://" + ContainerMediaDir + "/" + mediaFilename
	doc.Documents = []blankMedia{media}
	doc.Views = []struct{}{}
	return json.MarshalIndent(&doc, "", "  ")
}
