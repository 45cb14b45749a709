package ops

import (
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
)

func barTemplate(description string) string {
	return fmt.Sprintf(`{{ "%s" }} {{ bar . "[" "=" ">" " " "]"}} {{speed . }} {{percent . }} {{rtime . " ETA"}}`, description)
}

func newBar(size int64, description string) *pb.ProgressBar {
	bar := pb.New64(size)
	bar.Set(pb.SIBytesPrefix, true)
	bar.SetTemplateString(barTemplate(description))
	bar.SetRefreshRate(100 * time.Millisecond)
	bar.Start()
	return bar
}

// ProgressReader wraps an io.Reader with a progress bar.
type ProgressReader struct {
	reader io.Reader
	bar    *pb.ProgressBar
}

// NewProgressReader creates a new progress reader.
func NewProgressReader(r io.Reader, size int64, description string) *ProgressReader {
	bar := newBar(size, description)
	return &ProgressReader{
		reader: bar.NewProxyReader(r),
		bar:    bar,
	}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	return pr.reader.Read(p)
}

// Close finishes the progress bar.
func (pr *ProgressReader) Close() error {
	pr.bar.Finish()
	return nil
}

// ProgressWriter wraps an io.Writer with a progress bar.
type ProgressWriter struct {
	writer io.Writer
	bar    *pb.ProgressBar
}

// NewProgressWriter creates a new progress writer.
func NewProgressWriter(w io.Writer, size int64, description string) *ProgressWriter {
	bar := newBar(size, description)
	return &ProgressWriter{
		writer: bar.NewProxyWriter(w),
		bar:    bar,
	}
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	return pw.writer.Write(p)
}

// Close finishes the progress bar.
func (pw *ProgressWriter) Close() error {
	pw.bar.Finish()
	return nil
}

// Spinner shows indeterminate progress for operations without known size.
type Spinner struct {
	spinner *pb.ProgressBar
}

// NewSpinner creates a new indeterminate progress indicator.
func NewSpinner(description string) *Spinner {
	tmpl := fmt.Sprintf(`{{ "%s" }} {{ cycle . "⠋" "⠙" "⠹" "⠸" "⠼" "⠴" "⠦" "⠧" "⠇" "⠏" }}`, description)

	spinner := pb.New(0)
	spinner.SetTemplateString(tmpl)
	spinner.SetRefreshRate(100 * time.Millisecond)
	spinner.Start()

	return &Spinner{spinner: spinner}
}

// Stop stops the spinner.
func (s *Spinner) Stop() {
	s.spinner.Finish()
}
