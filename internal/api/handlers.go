package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

const contentSuffix = "/content"

type healthResponse struct {
	Status            string `json:"status"`
	StoreConnectivity string `json:"storeConnectivity"`
	Authentication    string `json:"authentication"`
	Timestamp         string `json:"timestamp"`
	Version           string `json:"version"`
}

type validateResponse struct {
	Valid         bool   `json:"valid"`
	Message       string `json:"message"`
	Authenticated bool   `json:"authenticated"`
	TokenPreview  string `json:"tokenPreview"`
	Timestamp     string `json:"timestamp"`
}

type indexResponse struct {
	Message        string            `json:"message"`
	Endpoints      map[string]string `json:"endpoints"`
	Authentication string            `json:"authentication"`
}

var endpoints = map[string]string{
	"GET /api/auth/validate":           "Validate the caller token",
	"GET /api/folders":                 "List folders (query: parentFolder)",
	"GET /api/documents":               "List documents (query: folderName)",
	"GET /api/tree":                    "Get folder tree (query: folderPath, maxDepth)",
	"GET /api/document/{path}/content": "Get document content",
	"POST /api/upload":                 "Upload file (body: folderPath, fileName, content, isBase64)",
	"POST /api/folder":                 "Create folder (body: folderName, parentPath)",
	"PUT /api/document/{path}":         "Replace an existing document (body: content, isBase64)",
	"DELETE /api/item/{path}":          "Delete a file or folder",
	"GET /ws":                          "WebSocket (query: token)",
}

func (s *Server) timestamp() string {
	return s.nowFunc().UTC().Format(time.RFC3339)
}

// withService answers 503 while no operations are available.
func (s *Server) withService(h func(http.ResponseWriter, *http.Request, resource.Service)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.svc == nil {
			writeErrorStatus(w, http.StatusServiceUnavailable, "SharePoint operations not initialized")

			return
		}

		h(w, r, s.svc)
	}
}

// connectivity pings the store at most once per healthCacheTTL; concurrent
// callers wait for the ping in progress.
func (s *Server) connectivity(ctx context.Context) string {
	if s.svc == nil {
		return resource.Disconnected
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	now := s.nowFunc()
	if s.healthVal != "" && now.Sub(s.healthAt) < healthCacheTTL {
		return s.healthVal
	}

	s.healthVal = s.svc.Connectivity(context.WithoutCancel(ctx))
	s.healthAt = now

	return s.healthVal
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "healthy",
		StoreConnectivity: s.connectivity(r.Context()),
		Authentication:    "required",
		Timestamp:         s.timestamp(),
		Version:           s.opts.Version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Message:        "SharePoint gateway API",
		Endpoints:      endpoints,
		Authentication: "Bearer token or X-API-Token header required",
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	caller, _ := authz.CallerFrom(r.Context())

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:         true,
		Message:       "API token is valid",
		Authenticated: true,
		TokenPreview:  caller.Preview,
		Timestamp:     s.timestamp(),
	})
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	res, err := svc.ListFolders(r.Context(), r.URL.Query().Get("parentFolder"))
	s.respond(w, r, res, err)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	res, err := svc.ListDocuments(r.Context(), r.URL.Query().Get("folderName"))
	s.respond(w, r, res, err)
}

// parseDepth reads an optional depth; empty selects def.
func parseDepth(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fault.New(fault.Validation, "api", "maxDepth must be an integer")
	}

	return n, nil
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	q := r.URL.Query()

	depth, err := parseDepth(q.Get("maxDepth"), s.opts.DefaultDepth)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := svc.GetFolderTree(r.Context(), q.Get("folderPath"), depth)
	s.respond(w, r, res, err)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	p, ok := strings.CutSuffix(r.PathValue("path"), contentSuffix)
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "endpoint not found")

		return
	}

	folder, name := splitDocumentPath(p)
	if name == "" {
		s.writeError(w, r, fault.New(fault.Validation, "api", "document path is required"))

		return
	}

	res, err := svc.GetDocumentContent(r.Context(), folder, name)
	s.respond(w, r, res, err)
}

// Mutations run detached from the request so a client disconnect cannot
// abandon a store write halfway.

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	var req uploadRequest
	if err := decodeBody(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := svc.UploadDocument(context.WithoutCancel(r.Context()), req.FolderPath, req.FileName, *req.Content, req.IsBase64)
	s.respond(w, r, res, err)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	var req folderRequest
	if err := decodeBody(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := svc.CreateFolder(context.WithoutCancel(r.Context()), req.ParentPath, req.FolderName)
	s.respond(w, r, res, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	folder, name := splitDocumentPath(r.PathValue("path"))
	if name == "" {
		s.writeError(w, r, fault.New(fault.Validation, "api", "document path is required"))

		return
	}

	var req updateRequest
	if err := decodeBody(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		s.writeError(w, r, err)

		return
	}

	res, err := svc.UpdateDocument(context.WithoutCancel(r.Context()), folder, name, *req.Content, req.IsBase64)
	s.respond(w, r, res, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, svc resource.Service) {
	res, err := svc.DeleteItem(context.WithoutCancel(r.Context()), r.PathValue("path"))
	s.respond(w, r, res, err)
}
