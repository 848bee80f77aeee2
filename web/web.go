// Package web embeds the viewer's templates and static assets.
package web

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed templates static
var files embed.FS

// Templates returns the template tree. A non-empty dir (the --web-dir flag)
// serves files from disk instead, for editing without a rebuild.
func Templates(dir string) fs.FS {
	return sub(dir, "templates")
}

// Static returns the static asset tree, from dir when set.
func Static(dir string) fs.FS {
	return sub(dir, "static")
}

func sub(dir, name string) fs.FS {
	if dir != "" {
		return os.DirFS(filepath.Join(dir, name))
	}
	f, err := fs.Sub(files, name)
	if err != nil {
		// name is a compile-time embedded directory.
		panic(err)
	}
	return f
}
