package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"podaudit/internal/annotate"
	slacknotify "podaudit/internal/integrations/slack"
	"podaudit/internal/report"
	"podaudit/internal/sample"
	"podaudit/internal/xlsxio"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server is the interactive shell around the sampler and aggregator: it owns
// nothing but the session store, the config and the optional Slack notifier.
type Server struct {
	cfg      Config
	store    *annotate.Store
	notifier *slacknotify.Notifier
	validate *validator.Validate
}

func NewServer(cfg Config, store *annotate.Store, notifier *slacknotify.Notifier) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		validate: validator.New(),
	}
}

func StartServer(cfg Config, store *annotate.Store, notifier *slacknotify.Notifier) error {
	s := NewServer(cfg, store, notifier)
	log.Printf("Listening on %s", cfg.ListenAddr)
	return http.ListenAndServe(cfg.ListenAddr, s.Routes())
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/sample", s.handleSample)
			r.Get("/sample", s.handleGetSample)
			r.Post("/annotations", s.handleSaveAnnotations)
			r.Get("/annotations/export", s.handleExportAnnotated)
			r.Get("/report", s.handleReport)
			r.Get("/report/archive", s.handleReportArchive)
		})
	})
	return r
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Create()
	log.Printf("Created session %s", sess.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.store.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

type sampleGroup struct {
	ServiceNumber string     `json:"service_number"`
	TNOs          []string   `json:"tnos"`
	Rows          [][]string `json:"rows"`
}

type sampleResponse struct {
	Columns []string      `json:"columns"`
	Total   int           `json:"total"`
	Groups  []sampleGroup `json:"groups"`
}

// handleSample ingests the uploaded raw spreadsheet, runs the sampler and
// returns the work list grouped by service number.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	body, err := uploadBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}
	tbl, err := xlsxio.DecodeTable(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode workbook: %v", err))
		return
	}

	sampled, err := sample.Sample(tbl, s.cfg.SampleOptions())
	if err != nil {
		var missing *sample.MissingColumnError
		if errors.As(err, &missing) {
			writeError(w, http.StatusUnprocessableEntity, missing.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.store.SaveSample(sess.ID, sampled)

	resp, err := workList(sampled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("Session %s sampled %d rows across %d service numbers", sess.ID, resp.Total, len(resp.Groups))
	writeJSON(w, http.StatusOK, resp)
}

// handleGetSample re-serves the session's work list, so a reviewer can reload
// mid-session without re-uploading (and re-drawing) the sample.
func (s *Server) handleGetSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Sampled == nil {
		writeError(w, http.StatusConflict, "no sample drawn yet")
		return
	}
	resp, err := workList(sess.Sampled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func workList(sampled *sample.Table) (sampleResponse, error) {
	groups, err := sample.Partition(sampled)
	if err != nil {
		return sampleResponse{}, err
	}
	tnoIdx, hasTNO := sampled.ColumnIndex(sample.TNOColumn)

	resp := sampleResponse{Columns: sampled.Header, Total: len(sampled.Rows)}
	for _, g := range groups {
		out := sampleGroup{ServiceNumber: g.ServiceNumber, Rows: g.Rows}
		if hasTNO {
			for _, row := range g.Rows {
				if tnoIdx < len(row) {
					out.TNOs = append(out.TNOs, row[tnoIdx])
				}
			}
		}
		resp.Groups = append(resp.Groups, out)
	}
	return resp, nil
}

type judgmentPayload struct {
	TNO       string `json:"tno" validate:"required"`
	Qualified bool   `json:"qualified"`
	Reason    string `json:"reason"`
}

type groupPayload struct {
	ServiceNumber string            `json:"service_number" validate:"required"`
	Distributor   string            `json:"distributor" validate:"required"`
	Judgments     []judgmentPayload `json:"judgments" validate:"required,min=1,dive"`
}

type annotationBatch struct {
	Date   string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Groups []groupPayload `json:"groups" validate:"required,min=1,dive"`
}

// handleSaveAnnotations drives the capture protocol from a finalized batch and
// overwrites the session's annotation cache wholesale.
func (s *Server) handleSaveAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var batch annotationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode batch: %v", err))
		return
	}
	if err := s.validate.Struct(batch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid batch: %v", err))
		return
	}

	date := time.Now().In(s.cfg.Location)
	if batch.Date != "" {
		parsed, err := time.Parse("2006-01-02", batch.Date)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid date %q", batch.Date))
			return
		}
		date = parsed
	}

	capture := annotate.NewCapture(date)
	for _, g := range batch.Groups {
		if err := capture.BeginGroup(g.ServiceNumber); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := capture.SetDistributor(g.Distributor); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		for _, j := range g.Judgments {
			if err := capture.Judge(j.TNO, j.Qualified, j.Reason); err != nil {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
		}
		if err := capture.EndGroup(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	records, err := capture.Finalize()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !s.store.SaveRecords(sess.ID, records) {
		writeError(w, http.StatusNotFound, "session expired")
		return
	}
	log.Printf("Session %s saved %d annotations", sess.ID, len(records))
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(records)})
}

func (s *Server) handleExportAnnotated(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if len(sess.Records) == 0 {
		writeError(w, http.StatusConflict, "no annotations saved yet")
		return
	}

	blob, err := xlsxio.EncodeRecords(sess.Records, xlsxio.AnnotatedSheet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	serveFile(w, "Final_Annotated_Data.xlsx", xlsxContentType, blob)
}

type summaryResponse struct {
	Distributor  string  `json:"distributor"`
	Total        int     `json:"total"`
	Qualified    int     `json:"qualified"`
	Rate         float64 `json:"rate"`
	WorstService string  `json:"worst_service,omitempty"`
	CommonReason string  `json:"common_reason,omitempty"`
	MessageZH    string  `json:"message_zh"`
	MessageEN    string  `json:"message_en"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	summaries, ok := s.aggregate(w, r)
	if !ok {
		return
	}

	out := make([]summaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, summaryResponse{
			Distributor:  sum.Distributor,
			Total:        sum.Total,
			Qualified:    sum.Qualified,
			Rate:         sum.Rate,
			WorstService: sum.WorstService,
			CommonReason: sum.CommonReason,
			MessageZH:    sum.MessageZH,
			MessageEN:    sum.MessageEN,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReportArchive builds the per-distributor workbooks, zips them, writes
// the archive to the output directory and hands it to the caller. Slack
// delivery and the output-dir copy are best effort; the download is the
// contract.
func (s *Server) handleReportArchive(w http.ResponseWriter, r *http.Request) {
	summaries, ok := s.aggregate(w, r)
	if !ok {
		return
	}

	var names []string
	blobs := make(map[string][]byte)
	for _, sum := range summaries {
		blob, err := xlsxio.EncodeRecords(sum.Records, xlsxio.ReportSheet)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		name := report.ExportFileName(sum.Distributor)
		names = append(names, name)
		blobs[name] = blob
	}

	archive, err := xlsxio.Bundle(names, blobs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reportDate := time.Now().In(s.cfg.Location)
	if len(summaries) > 0 && summaries[0].Records[0].Date != "" {
		if parsed, err := time.Parse("2006-01-02", summaries[0].Records[0].Date); err == nil {
			reportDate = parsed
		}
	}
	if path, err := report.WriteArchiveFile(archive, s.cfg.ReportOutputDir, reportDate); err != nil {
		log.Printf("Error writing report archive: %v", err)
	} else {
		log.Printf("Wrote report archive %s", path)
	}
	if err := s.notifier.DeliverSummaries(summaries); err != nil {
		log.Printf("Error delivering summaries to Slack: %v", err)
	}

	serveFile(w, "DSP_Reports.zip", "application/zip", archive)
}

// aggregate loads the session's annotation set and groups it, translating the
// failure taxonomy onto HTTP statuses.
func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) ([]report.Summary, bool) {
	sess, ok := s.session(w, r)
	if !ok {
		return nil, false
	}
	if len(sess.Records) == 0 {
		writeError(w, http.StatusConflict, "no annotations saved yet")
		return nil, false
	}

	summaries, err := report.Aggregate(sess.Records)
	if err != nil {
		var invalid *report.InvalidGroupError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusUnprocessableEntity, invalid.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return summaries, true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*annotate.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", id))
		return nil, false
	}
	return sess, true
}

// uploadBody accepts the raw workbook either as the request body or as the
// "file" field of a multipart form.
func uploadBody(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, err
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serveFile(w http.ResponseWriter, filename, contentType string, blob []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob); err != nil {
		log.Printf("Error writing download: %v", err)
	}
}
