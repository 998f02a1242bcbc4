package main

import (
	"embed"
	"io/fs"
	"net/http"
)

// The client bundle is compiled into the binary so a single executable
// serves both the API and the page.
//
//go:embed all:web
var webFS embed.FS

func webHandler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(sub)), nil
}
