package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bennhub/playwright-command-center/artifacts"
	"github.com/go-chi/chi/v5"
)

const videoExtension = artifacts.VideoExtension

var artifactContentTypes = map[string]string{
	artifacts.VideoExtension: "video/webm",
	artifacts.TraceExtension: "application/zip",
}

// resolveWithin joins rel onto root, refusing anything that would leave root.
func resolveWithin(root, rel string) (string, error) {
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", badRequest(msgPathEscapesRoot)
		}
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", badRequest(msgPathEscapesRoot)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	full := filepath.Join(absRoot, filepath.FromSlash(rel))
	inside, err := filepath.Rel(absRoot, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", badRequest(msgPathEscapesRoot)
	}
	return full, nil
}

// serveFile streams path, resolving directories to their index.html.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) error {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		path = filepath.Join(path, "index.html")
		info, err = os.Stat(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(msgNotFound)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return notFound(msgNotFound)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(msgNotFound)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) error {
	path, err := resolveWithin(s.cfg.Path(s.cfg.Runner.ReportDir), chi.URLParam(r, "*"))
	if err != nil {
		return err
	}
	return s.serveFile(w, r, path, "")
}

func (s *Server) handleLatestArtifact(w http.ResponseWriter, r *http.Request) error {
	spec := r.URL.Query().Get("spec")
	if err := s.validateSpec(spec); err != nil {
		return err
	}

	var (
		path string
		ok   bool
		ext  string
	)
	switch chi.URLParam(r, "kind") {
	case "video":
		path, ok = s.deps.Locator.LatestVideo(spec)
		ext = artifacts.VideoExtension
	case "trace":
		path, ok = s.deps.Locator.LatestTrace(spec)
		ext = artifacts.TraceExtension
	default:
		return notFound(msgNotFound)
	}
	if !ok {
		return notFound("No artifact recorded for this spec.")
	}
	return s.serveFile(w, r, path, artifactContentTypes[ext])
}

func (s *Server) handleLatestVideo(w http.ResponseWriter, r *http.Request) error {
	path, ok := s.deps.Locator.LatestAny(videoExtension)
	if !ok {
		return notFound("No video recorded yet.")
	}
	return s.serveFile(w, r, path, artifactContentTypes[videoExtension])
}

// handleTraceView redirects to the external trace viewer, pointing it at
// this server's artifact URL for the spec's latest trace.
func (s *Server) handleTraceView(w http.ResponseWriter, r *http.Request) error {
	spec := r.URL.Query().Get("spec")
	if err := s.validateSpec(spec); err != nil {
		return err
	}
	if _, ok := s.deps.Locator.LatestTrace(spec); !ok {
		return notFound("No trace recorded for this spec.")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	artifactURL := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     "/artifact/latest/trace",
		RawQuery: url.Values{"spec": {spec}}.Encode(),
	}

	viewer, err := url.Parse(s.cfg.Runner.TraceViewerURL)
	if err != nil {
		return fmt.Errorf("parse trace viewer url: %w", err)
	}
	q := viewer.Query()
	q.Set("trace", artifactURL.String())
	viewer.RawQuery = q.Encode()

	http.Redirect(w, r, viewer.String(), http.StatusFound)
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) error {
	return s.serveFile(w, r, filepath.Join(s.cfg.Path(s.cfg.Server.StaticDir), "index.html"), "text/html; charset=utf-8")
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) error {
	path, err := resolveWithin(s.cfg.Path(s.cfg.Server.StaticDir), chi.URLParam(r, "*"))
	if err != nil {
		return err
	}
	return s.serveFile(w, r, path, "")
}
