package web

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/history"
	"github.com/JonMunkholm/fleetsync/internal/logging"
	"github.com/JonMunkholm/fleetsync/internal/sheet"
	"github.com/JonMunkholm/fleetsync/internal/web/templates"
)

// formMemory is how much of a multipart upload is buffered in memory before
// spilling to a temp file.
const formMemory = 8 << 20

// defaultPrefix marks form values that become run defaults: default.busId=bus-7.
const defaultPrefix = "default."

// handleDashboard renders the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var groups []templates.FeedGroup
	for _, name := range core.Groups() {
		defs := core.ByGroup(name)
		infos := make([]core.FeedInfo, len(defs))
		for i, def := range defs {
			infos[i] = def.Info
		}
		groups = append(groups, templates.FeedGroup{Name: name, Feeds: infos})
	}

	// Don't fail the page if history is unavailable.
	recent, err := s.history.List(ctx, history.ListOptions{Limit: 20})
	if err != nil {
		logging.FromContext(ctx).Warn("list recent runs", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := templates.DashboardData{Groups: groups, Recent: recent, Status: s.limiter.Status()}
	if err := templates.Dashboard(data).Render(ctx, w); err != nil {
		logging.FromContext(ctx).Error("render dashboard", "error", err)
	}
}

// handleRunPage renders a stored run report.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	report, err := s.history.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.RunPage(report).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render run", "error", err)
	}
}

// feedResponse is one entry of GET /api/feeds.
type feedResponse struct {
	core.FeedInfo
	Kind    core.Kind `json:"kind"`
	Columns []string  `json:"columns"`
}

// handleListFeeds returns all registered feeds.
func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]feedResponse, len(defs))
	for i, def := range defs {
		cols := make([]string, len(def.Layout.Columns))
		for j, c := range def.Layout.Columns {
			cols[j] = c.Field
		}
		out[i] = feedResponse{FeedInfo: def.Info, Kind: def.Layout.Kind, Columns: cols}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImport reads an uploaded sheet and reconciles it with the record store.
//
// Form values: file (required), sheet, dry_run, and default.<field> for run
// defaults. The response is the run report, also kept in history.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	def, err := core.Lookup(chi.URLParam(r, "feedKey"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formMemory)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = sheet.ErrFileTooLarge
		} else {
			err = fmt.Errorf("%w: %v", errNoFile, err)
		}
		s.respondError(w, r, err, nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, nil)
		return
	}
	defer file.Close()

	sheetName := strings.TrimSpace(r.FormValue("sheet"))
	if sheetName == "" {
		sheetName = def.Info.Sheet
	}
	rows, err := readUpload(file, header, sheetName, maxSize)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))
	req := core.RunRequest{
		Feed:     def,
		Sheet:    sheetName,
		Rows:     rows,
		Defaults: formDefaults(r.MultipartForm),
		DryRun:   dryRun,
	}

	ctx := WithRequestMetadata(r.Context(), r)
	label := def.Info.Key + "/" + middleware.GetReqID(ctx)
	if err := s.limiter.Acquire(ctx, label); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	defer s.limiter.Release(label)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Import.Timeout)
	defer cancel()
	report, runErr := s.importer.Run(runCtx, req)

	if report != nil {
		// Saved even for aborted runs so the failure can be looked up later.
		if err := s.history.Save(context.WithoutCancel(ctx), report); err != nil {
			logging.ForRun(ctx, report.RunID, report.Feed).Error("save run history", "error", err)
		}
	}
	if runErr != nil {
		s.respondError(w, r, runErr, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func readUpload(file multipart.File, header *multipart.FileHeader, sheetName string, maxSize int64) ([]core.Row, error) {
	if header.Size > maxSize {
		return nil, sheet.ErrFileTooLarge
	}
	wb, err := sheet.OpenReader(file, header.Filename, maxSize)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.ReadSheet(sheetName)
}

// formDefaults collects default.<field> values. Empty values are ignored.
func formDefaults(form *multipart.Form) core.Fields {
	if form == nil {
		return nil
	}
	var defaults core.Fields
	for key, values := range form.Value {
		field, ok := strings.CutPrefix(key, defaultPrefix)
		if !ok || field == "" || len(values) == 0 {
			continue
		}
		v := strings.TrimSpace(values[0])
		if v == "" {
			continue
		}
		if defaults == nil {
			defaults = make(core.Fields)
		}
		defaults[field] = v
	}
	return defaults
}

// handleListRuns returns run summaries, newest first.
// Query: feed filters by feed key, limit caps the result.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := history.ListOptions{
		Feed:  r.URL.Query().Get("feed"),
		Limit: parseIntParam(r, "limit", history.DefaultListLimit),
	}
	runs, err := s.history.List(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if runs == nil {
		runs = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one full run report.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.history.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
