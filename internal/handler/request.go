package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/starblog/internal/apperror"
	"github.com/sakif/starblog/internal/auth"
	"github.com/sakif/starblog/internal/model"
	"github.com/sakif/starblog/internal/storage"
)

const (
	maxJSONBytes = 1 << 20
	// avatar plus the text fields around it
	maxMultipartBytes = storage.MaxAvatarBytes + 1<<20
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is empty.")
		}
		return apperror.ValidationFailed("body", "Invalid JSON body.")
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("avatar", "Upload is too large.")
		}
		return apperror.ValidationFailed("body", "Invalid multipart form.")
	}
	return nil
}

// formUpload returns the file in field, or nil when none was sent. The
// caller closes the returned body once the service is done with it.
func formUpload(r *http.Request, field string) (*storage.Upload, io.Closer, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperror.ValidationFailed(field, "Invalid file upload.")
	}
	return &storage.Upload{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        f,
	}, f, nil
}

func closeUpload(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "Invalid "+label+" ID.")
	}
	return id, nil
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer.")
	}
	return n, nil
}

// caller is the principal attached by auth.Gate.Require. Routes behind the
// mandatory gate always have one.
func caller(r *http.Request) *model.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

// viewerID is 0 for anonymous requests on optional routes.
func viewerID(r *http.Request) int64 {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.ID
	}
	return 0
}
