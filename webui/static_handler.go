package webui

import (
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"imagesynth/webui/static"
)

// StaticAssetHandler serves the embedded page assets under a URL prefix.
type StaticAssetHandler struct {
	fs          fs.FS
	prefix      string
	indexFile   string
	enableCache bool
	cacheMaxAge int
}

// StaticAssetConfig configures the StaticAssetHandler.
type StaticAssetConfig struct {
	// Prefix is the URL prefix for static assets (default: "/static")
	Prefix string

	// IndexFile is served for "/" (default: "index.html")
	IndexFile string

	// EnableCache sets a public max-age Cache-Control header
	EnableCache bool

	// CacheMaxAge in seconds (default: 3600)
	CacheMaxAge int
}

// DefaultStaticAssetConfig returns a default configuration.
func DefaultStaticAssetConfig() StaticAssetConfig {
	return StaticAssetConfig{
		Prefix:      "/static",
		IndexFile:   "index.html",
		EnableCache: true,
		CacheMaxAge: 3600,
	}
}

// NewStaticAssetHandler serves the embedded filesystem.
func NewStaticAssetHandler(config StaticAssetConfig) *StaticAssetHandler {
	return NewStaticAssetHandlerWithFS(static.GetFS(), config)
}

// NewStaticAssetHandlerWithFS serves fsys instead of the embedded assets.
func NewStaticAssetHandlerWithFS(fsys fs.FS, config StaticAssetConfig) *StaticAssetHandler {
	if config.Prefix == "" {
		config.Prefix = "/static"
	}
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}
	if config.CacheMaxAge == 0 {
		config.CacheMaxAge = 3600
	}
	return &StaticAssetHandler{
		fs:          fsys,
		prefix:      config.Prefix,
		indexFile:   config.IndexFile,
		enableCache: config.EnableCache,
		cacheMaxAge: config.CacheMaxAge,
	}
}

// ServeHTTP serves one asset. The URL path is cleaned before lookup, so
// "../" segments cannot leave the embedded tree.
func (h *StaticAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, h.prefix)
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		name = h.indexFile
	}

	h.serveFile(w, r, name)
}

// ServeIndex serves the index page.
func (h *StaticAssetHandler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	h.serveFile(w, r, h.indexFile)
}

func (h *StaticAssetHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	file, err := h.fs.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", detectContentType(name))
	if w.Header().Get("Cache-Control") == "" {
		if h.enableCache {
			w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.cacheMaxAge))
		} else {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}
	}

	if rs, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, stat.Name(), stat.ModTime(), rs)
		return
	}

	data, err := fs.ReadFile(h.fs, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// RegisterRoutes mounts the handler at prefix+"/".
func (h *StaticAssetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+h.prefix+"/", h)
}

// detectContentType determines the MIME type from the file extension.
func detectContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
