package e2e

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"
)

// fixtureFrames is the stream the fixture service sends for every upload.
var fixtureFrames = []string{
	`{"type":"status","payload":{"message":"Reading and parsing PDF..."}}`,
	`{"type":"metadata","payload":{"title":"Fixture Paper","authors":["Doe, J."],"year":2024,"affiliation":"Test Lab"}}`,
	`{"type":"reference","payload":{"raw_text":"[1] a","status":"Verified","title":"Fixture Reference One","source":"Crossref","verified_doi":"10.1234/fixture","verification_score":96.5}}`,
	`{"type":"reference","payload":{"raw_text":"[2] b","status":"Not Found","title":"Fixture Reference Two","format_suggestion":"Add the venue","verification_score":0}}`,
	`{"type":"summary","payload":{"total_references":2,"verified_count":1,"not_found_count":1,"format_error_count":0}}`,
	`{"type":"end","payload":{"message":"Verification process complete."}}`,
}

// newFixtureService serves fixtureFrames as an event stream, one frame
// every delay, each split across two writes.
func newFixtureService(delay time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range fixtureFrames {
			frame := "data: " + f + "\n\n"
			half := len(frame) / 2
			for _, part := range []string{frame[:half], frame[half:]} {
				io.WriteString(w, part)
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}))
}

// writeFixturePDF writes a placeholder document; the fixture service
// never parses it.
func writeFixturePDF(dir string) (string, error) {
	path := filepath.Join(dir, "fixture.pdf")
	return path, os.WriteFile(path, []byte("%PDF-1.4\n% fixture\n"), 0o644)
}

func readSnapshot(f *os.File) string {
	if err := f.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return ""
	}
	out := make([]byte, 0, 8192)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(out)
}
