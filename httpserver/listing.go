package httpserver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// serializeErrJSON is the fixed fallback body when listing serialization
// fails. Served with HTTP 200; the error travels in the envelope.
var serializeErrJSON = []byte(`{"success":false,"error":"Failed to serialize JSON"}`)

// FileEntry is one row of the recursive listing. Path is relative to the
// root, forward-slash separated, never starting with a slash. Modified is
// epoch milliseconds.
type FileEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Mime     string `json:"mime"`
	Ext      string `json:"ext,omitempty"`
	Modified int64  `json:"modified"`
}

// DirEntry is one row of the non-recursive listing. Directories carry an
// immediate-child count instead of size and mime.
type DirEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Children *int   `json:"children,omitempty"`
	Size     *int64 `json:"size,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Ext      string `json:"ext,omitempty"`
	URL      string `json:"url,omitempty"`
	Download string `json:"download,omitempty"`
	Modified int64  `json:"modified"`
}

type filesResponse struct {
	Success bool        `json:"success"`
	Root    string      `json:"root"`
	Server  string      `json:"server"`
	Total   int         `json:"total"`
	Files   []FileEntry `json:"files"`
}

type dirResponse struct {
	Success bool       `json:"success"`
	Path    string     `json:"path"`
	Server  string     `json:"server"`
	Total   int        `json:"total"`
	Items   []DirEntry `json:"items"`
}

type errResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Path    string `json:"path,omitempty"`
}

// buildRecursiveListing walks the tree depth-first and emits one FileEntry
// per regular file; directories are traversed, not listed. Unreadable
// subtrees are skipped rather than failing the whole listing.
func buildRecursiveListing(fs billy.Filesystem, root, serverURL string) []byte {
	files := []FileEntry{}
	collectFiles(fs, "", serverURL, &files)
	data, err := json.MarshalIndent(filesResponse{
		Success: true,
		Root:    root,
		Server:  serverURL,
		Total:   len(files),
		Files:   files,
	}, "", "  ")
	if err != nil {
		return serializeErrJSON
	}
	return data
}

func collectFiles(fs billy.Filesystem, rel, serverURL string, out *[]FileEntry) {
	entries, err := readDirSorted(fs, rel)
	if err != nil {
		return
	}
	for _, fi := range entries {
		childRel := fi.Name()
		if rel != "" {
			childRel = rel + "/" + fi.Name()
		}
		if fi.IsDir() {
			collectFiles(fs, childRel, serverURL, out)
			continue
		}
		*out = append(*out, FileEntry{
			Name:     fi.Name(),
			Path:     childRel,
			URL:      serverURL + "/download/" + encodePath(childRel),
			Size:     fi.Size(),
			Mime:     MimeType(fi.Name()),
			Ext:      extOf(fi.Name()),
			Modified: fi.ModTime().UnixMilli(),
		})
	}
}

// buildDirectoryListing lists only the immediate children of an already
// resolved root-relative directory. display is the path echoed back in the
// envelope. Missing or non-directory targets yield the error envelope,
// still with HTTP 200.
func buildDirectoryListing(fs billy.Filesystem, rel, display, serverURL string) []byte {
	fi, err := fs.Stat(billyPath(rel))
	if err != nil || !fi.IsDir() {
		return marshalOr(errResponse{Error: "Directory not found", Path: display}, serializeErrJSON)
	}
	entries, err := readDirSorted(fs, rel)
	if err != nil {
		return marshalOr(errResponse{Error: "Directory not found", Path: display}, serializeErrJSON)
	}

	items := []DirEntry{}
	for _, fi := range entries {
		childRel := fi.Name()
		if rel != "" {
			childRel = rel + "/" + fi.Name()
		}
		item := DirEntry{
			Name:     fi.Name(),
			Path:     childRel,
			Modified: fi.ModTime().UnixMilli(),
		}
		if fi.IsDir() {
			item.Type = "directory"
			count := 0
			if children, err := fs.ReadDir(billyPath(childRel)); err == nil {
				count = len(children)
			}
			item.Children = &count
		} else {
			size := fi.Size()
			encoded := encodePath(childRel)
			item.Type = "file"
			item.Size = &size
			item.Mime = MimeType(fi.Name())
			item.Ext = extOf(fi.Name())
			item.URL = serverURL + "/" + encoded
			item.Download = serverURL + "/download/" + encoded
		}
		items = append(items, item)
	}

	return marshalOr(dirResponse{
		Success: true,
		Path:    display,
		Server:  serverURL,
		Total:   len(items),
		Items:   items,
	}, serializeErrJSON)
}

func marshalOr(v any, fallback []byte) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fallback
	}
	return data
}

// buildHTMLIndex renders the fallback directory index: a list of links
// with a parent link unless at root and human-readable file sizes.
func buildHTMLIndex(fs billy.Filesystem, rel, display string) []byte {
	var b strings.Builder
	b.WriteString("<html><head><meta charset='utf-8'><meta name='viewport' content='width=device-width, initial-scale=1'>")
	b.WriteString("<style>body{font-family:-apple-system,sans-serif;padding:20px;background:#1a1a2e;color:#fff}")
	b.WriteString("a{color:#818cf8;text-decoration:none;display:block;padding:8px 0}a:hover{text-decoration:underline}</style>")
	b.WriteString("</head><body><h2>Index of ")
	b.WriteString(htmlEscape(display))
	b.WriteString("</h2>")

	if rel != "" {
		b.WriteString("<a href='../'>..</a>")
	}

	entries, err := readDirSorted(fs, rel)
	if err == nil {
		for _, fi := range entries {
			name := htmlEscape(fi.Name())
			href := url.PathEscape(fi.Name())
			if fi.IsDir() {
				fmt.Fprintf(&b, "<a href='%s/'>&#128193; %s/</a>", href, name)
			} else {
				fmt.Fprintf(&b, "<a href='%s'>&#128196; %s <small style='color:#888'>(%s)</small></a>",
					href, name, humanSize(fi.Size()))
			}
		}
	}

	b.WriteString("</body></html>")
	return []byte(b.String())
}

func readDirSorted(fs billy.Filesystem, rel string) ([]os.FileInfo, error) {
	entries, err := fs.ReadDir(billyPath(rel))
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// encodePath percent-encodes each path segment, keeping the separators.
func encodePath(rel string) string {
	segs := strings.Split(rel, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// humanSize formats a byte count as B, KB or MB with one decimal above 1 KB.
func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024.0)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024.0*1024.0))
	}
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
	return r.Replace(s)
}
