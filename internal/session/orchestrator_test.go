package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/netty/analyst/internal/api"
	"github.com/netty/analyst/internal/models"
)

type fakeService struct {
	upload  func(path string) (*models.UploadResponse, error)
	current func() (*models.UploadResponse, error)
	filter  func(protocol string) (*models.FilterResult, error)
	export  func(kind api.ExportKind) (*api.Export, error)
}

func (f *fakeService) Upload(ctx context.Context, path string) (*models.UploadResponse, error) {
	return f.upload(path)
}

func (f *fakeService) Current(ctx context.Context) (*models.UploadResponse, error) {
	return f.current()
}

func (f *fakeService) Filter(ctx context.Context, protocol string) (*models.FilterResult, error) {
	return f.filter(protocol)
}

func (f *fakeService) Export(ctx context.Context, kind api.ExportKind) (*api.Export, error) {
	return f.export(kind)
}

func analysisFor(name string) *models.UploadResponse {
	return &models.UploadResponse{
		Filename: name,
		Analysis: &models.AnalysisResult{BasicStats: &models.BasicStats{TotalPackets: 42}},
	}
}

// loaded returns an orchestrator that already holds an analysis of first.pcap
func loaded(t *testing.T, svc *fakeService) *Orchestrator {
	t.Helper()
	if svc.upload == nil {
		svc.upload = func(path string) (*models.UploadResponse, error) { return analysisFor(filepath.Base(path)), nil }
	}
	o := New(svc, nil, nil)
	cmd, err := o.SubmitFile(context.Background(), "/captures/first.pcap")
	if err != nil {
		t.Fatalf("SubmitFile: %v", err)
	}
	o.Handle(cmd())
	if !o.HasAnalysis() {
		t.Fatalf("Expected analysis to be loaded, error %q", o.Err())
	}
	return o
}

func TestSubmitFileSuccess(t *testing.T) {
	o := loaded(t, &fakeService{})

	if o.Screen() != ScreenDashboard {
		t.Errorf("Expected dashboard, got %v", o.Screen())
	}
	if o.FileName() != "first.pcap" {
		t.Errorf("Unexpected file name %q", o.FileName())
	}
	if o.Loading() || o.Err() != "" {
		t.Errorf("Expected settled state, loading=%v err=%q", o.Loading(), o.Err())
	}
}

func TestSubmitWhileLoadingIsRejected(t *testing.T) {
	svc := &fakeService{}
	o := loaded(t, svc)
	svc.upload = func(path string) (*models.UploadResponse, error) { return analysisFor("second.pcap"), nil }

	first, err := o.SubmitFile(context.Background(), "/captures/second.pcap")
	if err != nil {
		t.Fatal(err)
	}
	if !o.Loading() {
		t.Fatal("Expected loading while upload is outstanding")
	}
	if _, err := o.SubmitFile(context.Background(), "/captures/third.pcap"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
	if o.FileName() != "first.pcap" {
		t.Errorf("Rejected submit must not change the file name, got %q", o.FileName())
	}
	if _, err := o.Resume(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected Resume to be rejected too, got %v", err)
	}

	o.Handle(first())
	if o.FileName() != "second.pcap" || o.Loading() {
		t.Errorf("Unexpected state after completion: %q loading=%v", o.FileName(), o.Loading())
	}
}

func TestFailedUploadKeepsPriorAnalysis(t *testing.T) {
	svc := &fakeService{}
	o := loaded(t, svc)
	prior := o.Analysis()
	o.Navigate(ScreenChat)

	svc.upload = func(path string) (*models.UploadResponse, error) {
		return nil, errors.New("invalid file format")
	}
	cmd, err := o.SubmitFile(context.Background(), "/captures/broken.pcap")
	if err != nil {
		t.Fatal(err)
	}
	o.Handle(cmd())

	if o.Analysis() != prior || o.FileName() != "first.pcap" {
		t.Error("A failed upload must not clear the previous analysis")
	}
	if o.Err() != "invalid file format" {
		t.Errorf("Unexpected error %q", o.Err())
	}
	if o.Screen() != ScreenChat {
		t.Errorf("Screen must not change on failure, got %v", o.Screen())
	}
	if o.Loading() {
		t.Error("Loading must be released on failure")
	}
}

func TestPanicReleasesLoading(t *testing.T) {
	o := New(&fakeService{upload: func(string) (*models.UploadResponse, error) { panic("boom") }}, nil, nil)
	cmd, err := o.SubmitFile(context.Background(), "x.pcap")
	if err != nil {
		t.Fatal(err)
	}
	o.Handle(cmd())
	if o.Loading() || o.Err() == "" {
		t.Errorf("Expected failure state after panic, loading=%v err=%q", o.Loading(), o.Err())
	}
}

func TestTinyNonCaptureFileIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid file format"}`)
	}))
	defer srv.Close()

	client, err := api.NewClient(api.Options{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(client, nil, nil)
	cmd, err := o.SubmitFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	msg := cmd()
	if done, ok := msg.(UploadDoneMsg); !ok || api.KindOf(done.Err) != api.KindServerRejected {
		t.Fatalf("Expected server rejection, got %+v", msg)
	}
	o.Handle(msg)

	if o.Err() != "invalid file format" {
		t.Errorf("Expected service message verbatim, got %q", o.Err())
	}
	if o.Screen() != ScreenUpload || o.HasAnalysis() {
		t.Errorf("Expected to stay on upload without analysis, got %v", o.Screen())
	}
}

func TestNavigate(t *testing.T) {
	o := New(&fakeService{}, nil, nil)

	for _, target := range []Screen{ScreenDashboard, ScreenChat, ScreenFilter, Screen(42)} {
		if o.Navigate(target) {
			t.Errorf("Expected navigation to %v to be refused without analysis", target)
		}
		if o.Screen() != ScreenUpload {
			t.Errorf("Refused navigation changed the screen to %v", o.Screen())
		}
	}
	if !o.Navigate(ScreenUpload) {
		t.Error("Upload must always be reachable")
	}

	o = loaded(t, &fakeService{})
	for _, target := range Screens {
		if !o.Navigate(target) || o.Screen() != target {
			t.Errorf("Expected navigation to %v", target)
		}
	}
}

func TestExportDoesNotTouchLoading(t *testing.T) {
	svc := &fakeService{export: func(kind api.ExportKind) (*api.Export, error) {
		return nil, errors.New("Server error: 500")
	}}
	o := loaded(t, svc)

	cmd, err := o.RequestExport(context.Background(), api.ExportPDF)
	if err != nil {
		t.Fatal(err)
	}
	if o.Loading() {
		t.Error("Export must not set loading")
	}
	if _, err := o.RequestExport(context.Background(), api.ExportCSV); !errors.Is(err, ErrExportInFlight) {
		t.Errorf("Expected ErrExportInFlight, got %v", err)
	}

	// the main flow stays usable while the export is outstanding
	up, err := o.SubmitFile(context.Background(), "/captures/other.pcap")
	if err != nil {
		t.Fatalf("Expected upload to be accepted during export, got %v", err)
	}
	o.Handle(up())

	o.Handle(cmd())
	if o.Err() != "Server error: 500" {
		t.Errorf("Expected export failure in error, got %q", o.Err())
	}
	if o.Exporting() || o.Loading() || o.Screen() != ScreenDashboard {
		t.Errorf("Unexpected state exporting=%v loading=%v screen=%v", o.Exporting(), o.Loading(), o.Screen())
	}
}

func TestExportSavesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	svc := &fakeService{export: func(kind api.ExportKind) (*api.Export, error) {
		return &api.Export{Kind: kind, FileName: "ogpw_analysis_2026-10-14.csv", Data: []byte("a,b\n")}, nil
	}}
	svc.upload = func(path string) (*models.UploadResponse, error) { return analysisFor("first.pcap"), nil }
	o := New(svc, DirSaver(dir), nil)

	if _, err := o.RequestExport(context.Background(), api.ExportCSV); !errors.Is(err, ErrNoAnalysis) {
		t.Fatalf("Expected ErrNoAnalysis, got %v", err)
	}
	up, _ := o.SubmitFile(context.Background(), "first.pcap")
	o.Handle(up())

	cmd, err := o.RequestExport(context.Background(), api.ExportCSV)
	if err != nil {
		t.Fatal(err)
	}
	o.Handle(cmd())

	want := filepath.Join(dir, "ogpw_analysis_2026-10-14.csv")
	if o.LastExport() != want {
		t.Errorf("Expected report at %s, got %q", want, o.LastExport())
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "a,b\n" {
		t.Errorf("Unexpected saved report %q: %v", data, err)
	}
}

func TestFilterEmptyResult(t *testing.T) {
	var asked string
	svc := &fakeService{filter: func(protocol string) (*models.FilterResult, error) {
		asked = protocol
		return &models.FilterResult{Protocol: "ICMP", Error: "no packets found"}, nil
	}}
	o := loaded(t, svc)

	cmd, err := o.ApplyFilter(context.Background(), "icmp")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.ApplyFilter(context.Background(), "TCP"); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected second filter to be rejected, got %v", err)
	}
	o.Handle(cmd())

	if asked != "ICMP" {
		t.Errorf("Expected upper-cased protocol, got %q", asked)
	}
	if o.FilterErr() != "" || o.Err() != "" {
		t.Errorf("Empty result must not be an error: %q %q", o.FilterErr(), o.Err())
	}
	if res := o.FilterResult(); res == nil || !res.Empty() {
		t.Errorf("Expected empty filter result, got %+v", res)
	}
}

func TestFilterFailureStaysLocal(t *testing.T) {
	svc := &fakeService{filter: func(string) (*models.FilterResult, error) {
		return nil, errors.New("No response from server.")
	}}
	o := loaded(t, svc)

	cmd, _ := o.ApplyFilter(context.Background(), "TCP")
	o.Handle(cmd())
	if o.FilterErr() == "" || o.Err() != "" {
		t.Errorf("Expected filter-only error, got filter=%q global=%q", o.FilterErr(), o.Err())
	}
}

func TestFilterResultForReplacedAnalysisIsDropped(t *testing.T) {
	svc := &fakeService{filter: func(string) (*models.FilterResult, error) {
		return &models.FilterResult{Protocol: "TCP", PacketCount: 7}, nil
	}}
	o := loaded(t, svc)

	filter, _ := o.ApplyFilter(context.Background(), "TCP")
	up, _ := o.SubmitFile(context.Background(), "/captures/next.pcap")
	o.Handle(up())
	o.Handle(filter())

	if o.FilterResult() != nil || o.Filtering() {
		t.Errorf("Expected stale filter result to be dropped, got %+v", o.FilterResult())
	}
}

func TestResume(t *testing.T) {
	svc := &fakeService{current: func() (*models.UploadResponse, error) {
		return &models.UploadResponse{Filename: "earlier.pcap"}, nil
	}}
	o := New(svc, nil, nil)

	cmd, _ := o.Resume(context.Background())
	o.Handle(cmd())
	if o.HasAnalysis() || o.Err() == "" {
		t.Errorf("Expected an error when the service holds no analysis")
	}

	svc.current = func() (*models.UploadResponse, error) { return analysisFor("earlier.pcap"), nil }
	cmd, _ = o.Resume(context.Background())
	o.Handle(cmd())
	if o.FileName() != "earlier.pcap" || o.Screen() != ScreenDashboard || o.Err() != "" {
		t.Errorf("Unexpected state after resume: %q %v %q", o.FileName(), o.Screen(), o.Err())
	}
}
