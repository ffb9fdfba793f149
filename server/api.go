package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/bennhub/playwright-command-center/export"
	"github.com/bennhub/playwright-command-center/model"
	json "github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

type specsResponse struct {
	Specs          []string              `json:"specs"`
	Projects       []string              `json:"projects"`
	DefaultProject string                `json:"defaultProject"`
	Presets        []model.CommandPreset `json:"presets"`
}

type runRequest struct {
	Spec    string   `json:"spec"`
	Project string   `json:"project"`
	Presets []string `json:"presets"`
}

type suiteRequest struct {
	Specs   []string `json:"specs"`
	Project string   `json:"project"`
}

type availability struct {
	Available bool `json:"available"`
}

type artifactAvailability struct {
	Available struct {
		Video bool `json:"video"`
		Trace bool `json:"trace"`
	} `json:"available"`
}

func (s *Server) handleSpecs(w http.ResponseWriter, r *http.Request) error {
	list, err := s.deps.Catalog.List()
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, specsResponse{
		Specs:          list,
		Projects:       s.cfg.Projects.Names,
		DefaultProject: s.cfg.Projects.Default,
		Presets:        s.cfg.Presets,
	})
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	s.writeJSON(w, http.StatusOK, s.deps.Supervisor.Status())
	return nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) error {
	s.writeJSON(w, http.StatusOK, s.deps.Ledger.Snapshot())
	return nil
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) error {
	s.writeJSON(w, http.StatusOK, map[string][]model.LogEntry{"logs": s.deps.Logs.Snapshot()})
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) error {
	var req runRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	if err := s.validateSpec(req.Spec); err != nil {
		return err
	}
	project, err := s.validateProject(req.Project)
	if err != nil {
		return err
	}
	if len(req.Presets) == 0 {
		return badRequest(msgInvalidPresets)
	}
	for _, id := range req.Presets {
		if _, ok := s.cfg.Preset(id); !ok {
			return badRequest(msgInvalidPresets)
		}
	}

	ack, err := s.deps.Supervisor.StartRun(req.Spec, project, req.Presets)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, ack)
	return nil
}

func (s *Server) handleRunSuite(w http.ResponseWriter, r *http.Request) error {
	var req suiteRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	list, err := s.deps.Catalog.List()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(list))
	for _, spec := range list {
		known[spec] = true
	}

	var selected []string
	seen := map[string]bool{}
	for _, spec := range req.Specs {
		if !known[spec] {
			return badRequest(msgInvalidSpec)
		}
		if !seen[spec] {
			seen[spec] = true
			selected = append(selected, spec)
		}
	}
	if len(selected) == 0 {
		return badRequest(msgNoSpecs)
	}
	project, err := s.validateProject(req.Project)
	if err != nil {
		return err
	}

	ack, err := s.deps.Supervisor.StartSuiteRun(selected, project)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, ack)
	return nil
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Supervisor.Stop(); err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

func (s *Server) handleRerunLastFailed(w http.ResponseWriter, r *http.Request) error {
	last := s.deps.Ledger.LastFailed()
	if last == nil {
		return notFound(msgNoLastFailed)
	}
	if s.deps.Supervisor.Running() {
		return conflict(msgBusy)
	}
	if !s.cfg.HasProject(last.Project) {
		return badRequest(msgInvalidProject)
	}

	var (
		ack model.Ack
		err error
	)
	if last.PresetID == model.SuitePresetID {
		for _, spec := range last.Specs {
			if err := s.validateSpec(spec); err != nil {
				return err
			}
		}
		if len(last.Specs) == 0 {
			return badRequest(msgNoSpecs)
		}
		ack, err = s.deps.Supervisor.StartSuiteRun(last.Specs, last.Project)
	} else {
		if err := s.validateSpec(last.Spec); err != nil {
			return err
		}
		ack, err = s.deps.Supervisor.StartRun(last.Spec, last.Project, []string{last.PresetID})
	}
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, ack)
	return nil
}

func (s *Server) handleArtifactStatus(w http.ResponseWriter, r *http.Request) error {
	spec := r.URL.Query().Get("spec")
	if err := s.validateSpec(spec); err != nil {
		return err
	}
	var resp artifactAvailability
	_, resp.Available.Video = s.deps.Locator.LatestVideo(spec)
	_, resp.Available.Trace = s.deps.Locator.LatestTrace(spec)
	s.writeJSON(w, http.StatusOK, resp)
	return nil
}

func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) error {
	s.writeJSON(w, http.StatusOK, availability{Available: s.deps.Locator.ReportAvailable()})
	return nil
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) error {
	_, ok := s.deps.Locator.LatestAny(videoExtension)
	s.writeJSON(w, http.StatusOK, availability{Available: ok})
	return nil
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) error {
	var buf bytes.Buffer
	if err := export.Render(&buf, s.deps.Ledger.Snapshot(), s.now()); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="history.html"`)
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(buf.Bytes())
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write history export")
	}
	return nil
}

// validateSpec checks spec against a fresh directory listing.
func (s *Server) validateSpec(spec string) error {
	if spec == "" {
		return badRequest(msgInvalidSpec)
	}
	ok, err := s.deps.Catalog.Contains(spec)
	if err != nil {
		return err
	}
	if !ok {
		return badRequest(msgInvalidSpec)
	}
	return nil
}

// validateProject returns the project to use, defaulting when empty.
func (s *Server) validateProject(project string) (string, error) {
	if project == "" {
		return s.cfg.Projects.Default, nil
	}
	if !s.cfg.HasProject(project) {
		return "", badRequest(msgInvalidProject)
	}
	return project, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest(msgInvalidBody)
	}
	return nil
}
