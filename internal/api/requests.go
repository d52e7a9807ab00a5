package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

const maxNameLength = 255

// uploadRequest is the POST /api/upload body and the uploadDocument and
// updateDocument WebSocket params.
type uploadRequest struct {
	FileName   string  `json:"fileName"`
	Content    *string `json:"content"`
	FolderPath string  `json:"folderPath"`
	IsBase64   bool    `json:"isBase64"`
}

func (req uploadRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.FileName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&req.Content, validation.NotNil.Error("is required")),
	)
}

// folderRequest is the POST /api/folder body and the createFolder params.
type folderRequest struct {
	FolderName string `json:"folderName"`
	ParentPath string `json:"parentPath"`
}

func (req folderRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.FolderName, validation.Required, validation.Length(1, maxNameLength)),
	)
}

// updateRequest is the PUT /api/document/{path...} body.
type updateRequest struct {
	Content  *string `json:"content"`
	IsBase64 bool    `json:"isBase64"`
}

func (req updateRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Content, validation.NotNil.Error("is required")),
	)
}

// decodeBody reads a JSON body of at most limit bytes into dest and
// validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dest validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}

		if errors.Is(err, io.EOF) {
			return fault.New(fault.Validation, "api", "request body is required")
		}

		return fault.New(fault.Validation, "api", fmt.Sprintf("invalid request body: %v", err))
	}

	return validateParams(dest)
}

// validateParams runs dest's rules and classifies failures.
func validateParams(dest validation.Validatable) error {
	if err := dest.Validate(); err != nil {
		return fault.New(fault.Validation, "api", err.Error())
	}

	return nil
}

// splitDocumentPath splits "a/b/c.txt" into folder "a/b" and name "c.txt".
func splitDocumentPath(p string) (folder, name string) {
	p = strings.Trim(p, "/")

	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}

	return p[:i], p[i+1:]
}
