package server

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
)

// staticHandler serves files below dir for every request the API routes
// don't match, whatever the method. "/" maps to index.html. Missing files,
// directories and dot-segments answer 404 "404 File Not Found".
func staticHandler(dir string, log *zap.Logger) http.Handler {
	if dir == "" {
		dir = "."
	}
	root := os.DirFS(dir)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}
		if hasDotSegment(name) || !fs.ValidPath(name) {
			notFound(w)
			return
		}

		f, err := root.Open(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
				notFound(w)
				return
			}
			log.Error("opening static file", zap.String("path", name), zap.Error(err))
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			notFound(w)
			return
		}

		ctype := mime.TypeByExtension(path.Ext(name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ctype)

		if rs, ok := f.(io.ReadSeeker); ok {
			http.ServeContent(w, r, name, info.ModTime(), rs)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, f)
	})
}

func hasDotSegment(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "404 File Not Found")
}
