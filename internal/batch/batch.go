// Package batch turns recipient lists and promotional images into transport
// payloads: a data URI for JSON bodies or a part of a multipart upload.
package batch

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zulandar/switchboard/internal/apperr"
)

// CSVMIME is the content type used for recipient lists.
const CSVMIME = "text/csv"

// Required recipient columns per channel.
const (
	ColumnPhone = "phone"
	ColumnEmail = "email"
)

// File is raw user-supplied content with its original name.
type File struct {
	Name string
	Data []byte
}

// Load reads path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.FileReadError{Path: path, Err: err}
	}
	return &File{Name: filepath.Base(path), Data: data}, nil
}

// FromReader reads r fully into a File named name.
func FromReader(name string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &apperr.FileReadError{Path: name, Err: err}
	}
	return &File{Name: name, Data: data}, nil
}

// Payload is encoded content ready for transport.
type Payload struct {
	FileName string
	MIME     string
	Data     []byte
}

// DataURI returns the payload as a base64 data URI.
func (p *Payload) DataURI() string {
	return "data:" + p.MIME + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// WritePart adds the payload to mw as a file part under field.
func (p *Payload) WritePart(mw *multipart.Writer, field string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(p.FileName)))
	h.Set("Content-Type", p.MIME)
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("batch: create part %s: %w", field, err)
	}
	if _, err := w.Write(p.Data); err != nil {
		return fmt.Errorf("batch: write part %s: %w", field, err)
	}
	return nil
}

// Batch is a validated recipient list.
type Batch struct {
	Payload
	Columns    []string
	Recipients int
}

// CSV validates f as a recipient list carrying the required columns. Rows
// are neither deduplicated nor format-checked.
func CSV(f *File, required ...string) (*Batch, error) {
	if f == nil {
		return nil, apperr.NewValidation("batch", "a recipient file is required")
	}
	if !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
		return nil, &apperr.UnsupportedFormatError{Name: f.Name, Want: ".csv"}
	}
	if len(bytes.TrimSpace(f.Data)) == 0 {
		return nil, &apperr.FileReadError{Path: f.Name, Err: errors.New("file is empty")}
	}

	data := bytes.TrimPrefix(f.Data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, &apperr.FileReadError{Path: f.Name, Err: fmt.Errorf("read header: %w", err)}
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(h))
	}
	var missing []string
	for _, want := range required {
		if !containsColumn(cols, want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NewValidation("batch", "missing required column(s): "+strings.Join(missing, ", "))
	}

	rows := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &apperr.FileReadError{Path: f.Name, Err: err}
		}
		if blankRecord(rec) {
			continue
		}
		rows++
	}
	if rows == 0 {
		return nil, apperr.NewValidation("batch", "recipient file has no rows")
	}

	return &Batch{
		Payload:    Payload{FileName: f.Name, MIME: CSVMIME, Data: f.Data},
		Columns:    cols,
		Recipients: rows,
	}, nil
}

// imageTypes lists the attachment formats the gateways accept.
var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Image validates f as a promotional image, detecting its type from content.
func Image(f *File) (*Payload, error) {
	if f == nil {
		return nil, apperr.NewValidation("image", "an image file is required")
	}
	if len(f.Data) == 0 {
		return nil, &apperr.FileReadError{Path: f.Name, Err: errors.New("file is empty")}
	}
	mt := mimetype.Detect(f.Data)
	for _, t := range imageTypes {
		if mt.Is(t) {
			return &Payload{FileName: f.Name, MIME: t, Data: f.Data}, nil
		}
	}
	return nil, &apperr.UnsupportedFormatError{Name: f.Name, Want: "png, jpeg, gif or webp image"}
}

// detectDelimiter picks ';' for spreadsheet exports that use it in the
// header line, ',' otherwise.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func containsColumn(cols []string, want string) bool {
	want = strings.ToLower(want)
	for _, c := range cols {
		if c == want {
			return true
		}
	}
	return false
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
