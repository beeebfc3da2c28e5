package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/internal/storage"
)

const (
	maxMultipartMemory = 32 << 20
	maxImageBytes      = 5 << 20
	maxJSONBytes       = 1 << 20

	formFieldImages         = "images"
	formFieldExistingImages = "existingImages"
	formFieldProfilePicture = "profilePicture"
)

// requestForm is a flattened view of a JSON, urlencoded or multipart body.
// Listing endpoints accept any of them.
type requestForm struct {
	values map[string][]string
	files  map[string][]*multipart.FileHeader
}

func readForm(r *http.Request) (requestForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return readJSONForm(r)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return requestForm{}, services.NewValidationError("body", "is not a valid multipart form")
		}
		return requestForm{values: r.MultipartForm.Value, files: r.MultipartForm.File}, nil
	default:
		if err := r.ParseForm(); err != nil {
			return requestForm{}, services.NewValidationError("body", "is not a valid form")
		}
		return requestForm{values: r.PostForm}, nil
	}
}

func readJSONForm(r *http.Request) (requestForm, error) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(&raw); err != nil {
		return requestForm{}, services.NewValidationError("body", "is not valid JSON")
	}

	values := make(map[string][]string, len(raw))
	for key, v := range raw {
		switch v := v.(type) {
		case nil:
			values[key] = []string{""}
		case string:
			values[key] = []string{v}
		case float64:
			values[key] = []string{strconv.FormatFloat(v, 'f', -1, 64)}
		case bool:
			values[key] = []string{strconv.FormatBool(v)}
		case []any:
			list := make([]string, 0, len(v))
			for _, elem := range v {
				if s, ok := elem.(string); ok {
					list = append(list, s)
				}
			}
			values[key] = list
		default:
			return requestForm{}, services.NewValidationError(key, "has an unsupported type")
		}
	}
	return requestForm{values: values}, nil
}

func (f requestForm) has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f requestForm) get(key string) string {
	if v := f.values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// str returns nil when the field was not sent.
func (f requestForm) str(key string) *string {
	if !f.has(key) {
		return nil
	}
	v := f.get(key)
	return &v
}

// float returns nil when the field is absent or blank.
func (f requestForm) float(key string) (*float64, error) {
	raw := f.get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, services.NewValidationError(key, "must be a number")
	}
	return &v, nil
}

func (f requestForm) int(key string) (*int, error) {
	raw := f.get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, services.NewValidationError(key, "must be a whole number")
	}
	return &v, nil
}

// blank reports whether the field was sent empty, which clears optional
// numeric values such as price.
func (f requestForm) blank(key string) bool {
	return f.has(key) && f.get(key) == ""
}

// list accepts repeated fields, the bracketed form and a single JSON array.
func (f requestForm) list(key string) ([]string, bool) {
	values, ok := f.values[key]
	if bracketed, found := f.values[key+"[]"]; found {
		values = slices.Concat(values, bracketed)
		ok = true
	}
	if !ok {
		return nil, false
	}
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var decoded []string
		if err := json.Unmarshal([]byte(values[0]), &decoded); err == nil {
			return decoded, true
		}
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, true
}

// uploads reads every file sent under key into memory.
func (f requestForm) uploads(key string) ([]storage.Upload, error) {
	headers := slices.Concat(f.files[key], f.files[key+"[]"])
	uploads := make([]storage.Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header, key)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func readUpload(header *multipart.FileHeader, field string) (storage.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return storage.Upload{}, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		return storage.Upload{}, services.NewValidationError(field, err.Error())
	}
	return storage.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("could not be read")
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("must be at most %d MB", limit>>20)
	}
	return data, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(dst); err != nil {
		return services.NewValidationError("body", "is not valid JSON")
	}
	return nil
}
