package mcpserver

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// Tool names.
const (
	ToolListFolders    = "List_SharePoint_Folders"
	ToolListDocuments  = "List_SharePoint_Documents"
	ToolTree           = "Get_SharePoint_Tree"
	ToolContent        = "Get_Document_Content"
	ToolCreateFolder   = "Create_Folder"
	ToolUpload         = "Upload_Document"
	ToolUploadFromPath = "Upload_Document_From_Path"
	ToolUpdate         = "Update_Document"
	ToolDeleteDocument = "Delete_Document"
	ToolDeleteFolder   = "Delete_Folder"
	ToolDownload       = "Download_Document"
)

type listFoldersInput struct {
	ParentFolder string `json:"parent_folder,omitempty" jsonschema:"Parent folder path (optional, defaults to root)"`
}

type listDocumentsInput struct {
	FolderName string `json:"folder_name" jsonschema:"Folder name to list documents from"`
}

type treeInput struct {
	ParentFolder string `json:"parent_folder,omitempty" jsonschema:"Parent folder path (optional, defaults to root)"`
	MaxDepth     int    `json:"max_depth,omitempty" jsonschema:"Maximum depth for recursion (default: 3)"`
}

type contentInput struct {
	FolderName string `json:"folder_name" jsonschema:"Folder containing the document"`
	FileName   string `json:"file_name" jsonschema:"Name of the file to get content from"`
}

type createFolderInput struct {
	FolderName   string `json:"folder_name" jsonschema:"Name of the folder to create"`
	ParentFolder string `json:"parent_folder,omitempty" jsonschema:"Parent folder path (optional, defaults to root)"`
}

type writeInput struct {
	FolderName string `json:"folder_name" jsonschema:"Target folder name"`
	FileName   string `json:"file_name" jsonschema:"Name of the file"`
	Content    string `json:"content" jsonschema:"File content (text or base64)"`
	IsBase64   bool   `json:"is_base64,omitempty" jsonschema:"Whether the content is base64 encoded"`
}

type uploadFromPathInput struct {
	FolderName  string `json:"folder_name" jsonschema:"Target folder name"`
	FilePath    string `json:"file_path" jsonschema:"Local file path to upload"`
	NewFileName string `json:"new_file_name,omitempty" jsonschema:"New name for the uploaded file (optional, defaults to the local name)"`
}

type deleteDocumentInput struct {
	FolderName string `json:"folder_name" jsonschema:"Folder containing the document"`
	FileName   string `json:"file_name" jsonschema:"Name of the file to delete"`
}

type deleteFolderInput struct {
	FolderPath string `json:"folder_path" jsonschema:"Path of the folder to delete"`
}

type downloadInput struct {
	FolderName string `json:"folder_name" jsonschema:"Folder containing the document"`
	FileName   string `json:"file_name" jsonschema:"Name of the file to download"`
	LocalPath  string `json:"local_path" jsonschema:"Local path where to save the file"`
}

func (s *Server) registerTools() {
	boolPtr := func(b bool) *bool { return &b }
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}
	write := &mcp.ToolAnnotations{DestructiveHint: boolPtr(false)}
	overwrite := &mcp.ToolAnnotations{DestructiveHint: boolPtr(true), IdempotentHint: true}
	destructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListFolders,
		Description: "List folders in the specified SharePoint directory or root if not specified",
		Annotations: readOnly,
	}, handler(s, ToolListFolders, func(ctx context.Context, in listFoldersInput) (any, error) {
		return s.svc.ListFolders(ctx, in.ParentFolder)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListDocuments,
		Description: "List all documents in a specified SharePoint folder",
		Annotations: readOnly,
	}, handler(s, ToolListDocuments, func(ctx context.Context, in listDocumentsInput) (any, error) {
		return s.svc.ListDocuments(ctx, in.FolderName)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolTree,
		Description: "Get a recursive tree view of a SharePoint folder",
		Annotations: readOnly,
	}, handler(s, ToolTree, func(ctx context.Context, in treeInput) (any, error) {
		depth := in.MaxDepth
		if depth == 0 {
			depth = s.defaultDepth
		}

		return s.svc.GetFolderTree(ctx, in.ParentFolder, depth)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolContent,
		Description: "Get content of a document in SharePoint",
		Annotations: readOnly,
	}, handler(s, ToolContent, func(ctx context.Context, in contentInput) (any, error) {
		return s.svc.GetDocumentContent(ctx, in.FolderName, in.FileName)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCreateFolder,
		Description: "Create a new folder in the specified SharePoint directory or root if not specified",
		Annotations: write,
	}, handler(s, ToolCreateFolder, func(ctx context.Context, in createFolderInput) (any, error) {
		return s.svc.CreateFolder(ctx, in.ParentFolder, in.FolderName)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolUpload,
		Description: "Upload a new file to SharePoint",
		Annotations: write,
	}, handler(s, ToolUpload, func(ctx context.Context, in writeInput) (any, error) {
		return s.svc.UploadDocument(ctx, in.FolderName, in.FileName, in.Content, in.IsBase64)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolUpdate,
		Description: "Update an existing document in SharePoint",
		Annotations: overwrite,
	}, handler(s, ToolUpdate, func(ctx context.Context, in writeInput) (any, error) {
		return s.svc.UpdateDocument(ctx, in.FolderName, in.FileName, in.Content, in.IsBase64)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDeleteDocument,
		Description: "Delete a document from SharePoint",
		Annotations: destructive,
	}, handler(s, ToolDeleteDocument, func(ctx context.Context, in deleteDocumentInput) (any, error) {
		if strings.TrimSpace(in.FileName) == "" {
			return nil, fault.New(fault.Validation, "mcpserver", "file_name is required")
		}

		return s.svc.DeleteItem(ctx, in.FolderName+"/"+in.FileName)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDeleteFolder,
		Description: "Delete a folder and its contents from SharePoint",
		Annotations: destructive,
	}, handler(s, ToolDeleteFolder, func(ctx context.Context, in deleteFolderInput) (any, error) {
		return s.svc.DeleteItem(ctx, in.FolderPath)
	}))

	if s.local == nil {
		return
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolUploadFromPath,
		Description: "Upload a file directly from a file path to SharePoint",
		Annotations: write,
	}, handler(s, ToolUploadFromPath, func(ctx context.Context, in uploadFromPathInput) (any, error) {
		return s.local.UploadFromPath(ctx, in.FolderName, in.FilePath, in.NewFileName)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDownload,
		Description: "Download a document to local filesystem",
		Annotations: write,
	}, handler(s, ToolDownload, func(ctx context.Context, in downloadInput) (any, error) {
		return s.local.DownloadToPath(ctx, in.FolderName, in.FileName, in.LocalPath)
	}))
}
