package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/pathderive"
)

const maxAssetSize = 10 << 20 // 10 MB

var mimeToExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"audio/mpeg":      ".mp3",
	"video/mp4":       ".mp4",
}

type importResult struct {
	Asset   string `json:"asset"`
	Sidecar string `json:"sidecar"`
	Created bool   `json:"sidecarCreated"`
	Size    int    `json:"size"`
}

func (s *Server) importAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder := strings.Trim(req.GetString("folder", ""), "/")
	filename := req.GetString("filename", "")

	data, ext, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAssetSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAssetSize)), nil
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if filename == "" {
		filename = uuid.NewString() + ext
	}
	filename = sanitizeFilename(filename)
	if path.Ext(filename) == "" {
		filename += ext
	}
	target := filename
	if folder != "" {
		target = path.Join(folder, filename)
	}
	if pathderive.ClassifyPath(target) != pathderive.Source {
		return mcp.NewToolResultError(fmt.Sprintf("not an asset name: %s", target)), nil
	}

	if err := s.files.Create(target, data); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", target)), nil
		}
		return errorResult(target, err), nil
	}

	res, err := s.svc.CreateForPath(ctx, target)
	if err != nil {
		return errorResult(target, err), nil
	}
	out, _ := json.Marshal(importResult{
		Asset:   target,
		Sidecar: res.Sidecar,
		Created: res.Created,
		Size:    len(data),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI and returns the
// payload with the extension matching its MIME type.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing data: prefix")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// sanitizeFilename drops any directory part and slugs the stem. The
// result has no dot in its stem, so it always classifies by extension.
func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(base)
	stem := slug.Make(strings.TrimSuffix(base, ext))
	if ext != "" {
		ext = "." + slug.Make(ext[1:])
		if ext == "." {
			ext = ""
		}
	}
	if stem == "" {
		stem = uuid.NewString()
	}
	return stem + ext
}

// validateMagicBytes verifies that image and PDF content matches the
// declared extension. Other media types are accepted as declared.
func validateMagicBytes(data []byte, ext string) error {
	switch ext {
	case ".svg":
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG (missing <svg tag)")
		}
		return nil
	case ".png", ".jpg", ".gif", ".webp", ".pdf":
		detected := http.DetectContentType(data)
		if mimeToExt[strings.Split(detected, ";")[0]] != ext {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
