package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podaudit/internal/annotate"
	"podaudit/internal/sample"
	"podaudit/internal/xlsxio"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ListenAddr:      ":0",
		ReportOutputDir: t.TempDir(),
		SampleCap:       30,
		SampleSeed:      42,
		ExcludedPrefix:  "550",
		RequiredStatus:  203,
		Location:        time.UTC,
	}
}

func testServer(t *testing.T) (*httptest.Server, Config) {
	t.Helper()
	cfg := testConfig(t)
	store := annotate.NewStore(time.Hour)
	srv := httptest.NewServer(NewServer(cfg, store, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, cfg
}

func uploadWorkbook(t *testing.T) []byte {
	t.Helper()
	tbl := &sample.Table{
		Header: []string{"service_number", "tno", "state", "199_pathtime"},
		Rows: [][]string{
			{"A1", "TN001", "203", "x"},
			{"A1", "TN002", "203", "x"},
			{"B2", "TN101", "203", "x"},
			{"550999", "TN555", "203", "x"}, // excluded carrier segment
			{"A1", "TN003", "100", "x"},     // wrong status
		},
	}
	blob, err := xlsxio.EncodeTable(tbl, "Deliveries")
	if err != nil {
		t.Fatalf("encode upload workbook: %v", err)
	}
	return blob
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status: %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if out["id"] == "" {
		t.Fatalf("session id missing")
	}
	return out["id"]
}

func postSample(t *testing.T, srv *httptest.Server, id string) sampleResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions/"+id+"/sample", "application/octet-stream", bytes.NewReader(uploadWorkbook(t)))
	if err != nil {
		t.Fatalf("post sample: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sample status: %d", resp.StatusCode)
	}
	var out sampleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode sample response: %v", err)
	}
	return out
}

func saveAnnotations(t *testing.T, srv *httptest.Server, id, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions/"+id+"/annotations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post annotations: %v", err)
	}
	return resp
}

const annotationBody = `{
	"date": "2026-08-29",
	"groups": [
		{
			"service_number": "A1",
			"distributor": "Acme",
			"judgments": [
				{"tno": "TN001", "qualified": true},
				{"tno": "TN002", "qualified": false, "reason": "09"}
			]
		},
		{
			"service_number": "B2",
			"distributor": "Borealis",
			"judgments": [
				{"tno": "TN101", "qualified": true}
			]
		}
	]
}`

func TestSampleEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	out := postSample(t, srv, id)
	if out.Total != 3 {
		t.Fatalf("expected 3 eligible rows, got %d", out.Total)
	}
	if len(out.Groups) != 2 {
		t.Fatalf("expected groups A1 and B2, got %+v", out.Groups)
	}
	if out.Groups[0].ServiceNumber != "A1" || out.Groups[1].ServiceNumber != "B2" {
		t.Fatalf("unexpected group order: %+v", out.Groups)
	}
	if len(out.Groups[0].TNOs) != 2 {
		t.Fatalf("expected 2 TNOs for A1, got %v", out.Groups[0].TNOs)
	}
	for _, col := range out.Columns {
		if col == "199_pathtime" {
			t.Fatalf("dropped column leaked into the work list: %v", out.Columns)
		}
	}
}

func TestSampleEndpointMissingColumn(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	blob, err := xlsxio.EncodeTable(&sample.Table{
		Header: []string{"tno", "state"},
		Rows:   [][]string{{"TN001", "203"}},
	}, "Broken")
	if err != nil {
		t.Fatalf("encode workbook: %v", err)
	}

	resp, err := http.Post(srv.URL+"/api/sessions/"+id+"/sample", "application/octet-stream", bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("post sample: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing column, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if !strings.Contains(out["error"], "service_number") {
		t.Fatalf("error should name the missing column: %q", out["error"])
	}
}

func TestGetSampleReservesWorkList(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	early, err := http.Get(srv.URL + "/api/sessions/" + id + "/sample")
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	early.Body.Close()
	if early.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before an upload, got %d", early.StatusCode)
	}

	first := postSample(t, srv, id)

	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/sample")
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get sample status: %d", resp.StatusCode)
	}
	var again sampleResponse
	if err := json.NewDecoder(resp.Body).Decode(&again); err != nil {
		t.Fatalf("decode work list: %v", err)
	}
	if again.Total != first.Total || len(again.Groups) != len(first.Groups) {
		t.Fatalf("reloaded work list differs:\nfirst: %+v\nagain: %+v", first, again)
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := http.Get(srv.URL + "/api/sessions/nope/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestAnnotateExportReportFlow(t *testing.T) {
	srv, cfg := testServer(t)
	id := createSession(t, srv)
	postSample(t, srv, id)

	resp := saveAnnotations(t, srv, id, annotationBody)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save annotations status: %d", resp.StatusCode)
	}
	var saved map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if saved["saved"] != 3 {
		t.Fatalf("expected 3 saved records, got %d", saved["saved"])
	}

	// Annotated export round-trips through the spreadsheet encoding.
	expResp, err := http.Get(srv.URL + "/api/sessions/" + id + "/annotations/export")
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	defer expResp.Body.Close()
	if expResp.StatusCode != http.StatusOK {
		t.Fatalf("export status: %d", expResp.StatusCode)
	}
	records, err := xlsxio.DecodeRecords(expResp.Body)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 exported records, got %d", len(records))
	}
	if records[1].TNO != "TN002" || records[1].Qualified || records[1].Reason != "No POD" {
		t.Fatalf("unexpected exported record: %+v", records[1])
	}
	if records[1].Date != "2026-08-29" || records[1].ServiceNumber != "A1" {
		t.Fatalf("unexpected exported record: %+v", records[1])
	}

	// Report summaries.
	repResp, err := http.Get(srv.URL + "/api/sessions/" + id + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer repResp.Body.Close()
	if repResp.StatusCode != http.StatusOK {
		t.Fatalf("report status: %d", repResp.StatusCode)
	}
	var summaries []summaryResponse
	if err := json.NewDecoder(repResp.Body).Decode(&summaries); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 distributors, got %+v", summaries)
	}
	acme := summaries[0]
	if acme.Distributor != "Acme" || acme.Total != 2 || acme.Qualified != 1 || acme.Rate != 50 {
		t.Fatalf("unexpected Acme summary: %+v", acme)
	}
	if acme.WorstService != "A1" || acme.CommonReason != "No POD" {
		t.Fatalf("unexpected Acme attribution: %+v", acme)
	}
	borealis := summaries[1]
	if borealis.Rate != 100 || borealis.WorstService != "" {
		t.Fatalf("unexpected Borealis summary: %+v", borealis)
	}
	if !strings.Contains(borealis.MessageEN, "100% qualified") {
		t.Fatalf("unexpected Borealis message: %s", borealis.MessageEN)
	}

	// Archive download plus the output-dir copy.
	arcResp, err := http.Get(srv.URL + "/api/sessions/" + id + "/report/archive")
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	defer arcResp.Body.Close()
	if arcResp.StatusCode != http.StatusOK {
		t.Fatalf("archive status: %d", arcResp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(arcResp.Body); err != nil {
		t.Fatalf("read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "Acme_report.xlsx" || zr.File[1].Name != "Borealis_report.xlsx" {
		names := []string{}
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		t.Fatalf("unexpected archive entries: %v", names)
	}

	written, err := os.ReadFile(filepath.Join(cfg.ReportOutputDir, "DSP_Reports_20260829.zip"))
	if err != nil {
		t.Fatalf("archive not written to output dir: %v", err)
	}
	if !bytes.Equal(written, buf.Bytes()) {
		t.Fatalf("output-dir archive differs from the download")
	}
}

func TestAnnotationsOverwriteWholesale(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	first := saveAnnotations(t, srv, id, annotationBody)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first save status: %d", first.StatusCode)
	}

	smaller := `{"groups": [{"service_number": "A1", "distributor": "Acme",
		"judgments": [{"tno": "TN001", "qualified": true}]}]}`
	second := saveAnnotations(t, srv, id, smaller)
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second save status: %d", second.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer resp.Body.Close()
	var summaries []summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Total != 1 {
		t.Fatalf("second save must replace the first entirely: %+v", summaries)
	}
}

func TestAnnotationsValidation(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	cases := []struct {
		name string
		body string
	}{
		{"no groups", `{"groups": []}`},
		{"missing distributor", `{"groups": [{"service_number": "A1", "judgments": [{"tno": "T1", "qualified": true}]}]}`},
		{"reserved reason", `{"groups": [{"service_number": "A1", "distributor": "Acme", "judgments": [{"tno": "T1", "qualified": false, "reason": "00"}]}]}`},
		{"unknown reason", `{"groups": [{"service_number": "A1", "distributor": "Acme", "judgments": [{"tno": "T1", "qualified": false, "reason": "77"}]}]}`},
		{"bad date", `{"date": "29-08-2026", "groups": [{"service_number": "A1", "distributor": "Acme", "judgments": [{"tno": "T1", "qualified": true}]}]}`},
	}
	for _, tc := range cases {
		resp := saveAnnotations(t, srv, id, tc.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", tc.name, resp.StatusCode)
		}
	}

	// Nothing invalid may be partially saved.
	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 with no saved annotations, got %d", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, _ := testServer(t)
	id := createSession(t, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+id, nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}

	after, err := http.Get(srv.URL + "/api/sessions/" + id + "/report")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	after.Body.Close()
	if after.StatusCode != http.StatusNotFound {
		t.Fatalf("destroyed session must be gone, got %d", after.StatusCode)
	}
}
