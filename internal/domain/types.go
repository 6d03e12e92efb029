package domain

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// ResultKind discriminates which AI-generated text is on display.
type ResultKind string

const (
	KindAnalysis    ResultKind = "analysis"
	KindRecipe      ResultKind = "recipe"
	KindAlternative ResultKind = "alternative"
)

// Heading returns the Polish heading shown above a result of this kind.
func (k ResultKind) Heading() string {
	switch k {
	case KindAnalysis:
		return "Wynik analizy:"
	case KindRecipe:
		return "Wygenerowany przepis:"
	case KindAlternative:
		return "Zdrowsza alternatywa:"
	default:
		return ""
	}
}

func (k ResultKind) Valid() bool {
	switch k {
	case KindAnalysis, KindRecipe, KindAlternative:
		return true
	}
	return false
}

// RequestState is the coarse request status derived from the scanner state.
type RequestState int

const (
	StateIdle RequestState = iota
	StateInFlight
	StateError
)

func (s RequestState) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

type AnalysisResult struct {
	Kind ResultKind
	Text string
}

// SelectedImage is a binary blob with its declared media type. The blob is
// read lazily through Open, so reading can fail long after selection.
type SelectedImage struct {
	Name     string
	MimeType string
	Size     int64
	open     func() (io.ReadCloser, error)
}

// NewImageFromBytes wraps an in-memory upload.
func NewImageFromBytes(name, mimeType string, data []byte) *SelectedImage {
	return &SelectedImage{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NewImageFromFile references a file on disk; the file is opened on each read.
func NewImageFromFile(path, mimeType string) (*SelectedImage, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &SelectedImage{
		Name:     fi.Name(),
		MimeType: mimeType,
		Size:     fi.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// NewImageFromOpener is used when the blob lives somewhere the caller controls.
func NewImageFromOpener(name, mimeType string, size int64, open func() (io.ReadCloser, error)) *SelectedImage {
	return &SelectedImage{Name: name, MimeType: mimeType, Size: size, open: open}
}

func (i *SelectedImage) Open() (io.ReadCloser, error) {
	if i.open == nil {
		return nil, fmt.Errorf("image has no data source")
	}
	return i.open()
}

// EncodedPayload is an image in transport form: base64 data plus media type.
type EncodedPayload struct {
	MimeType string
	Data     string
}

// Scan is one completed result kept in the history journal.
type Scan struct {
	ID        int64
	Kind      ResultKind
	MimeType  string
	Text      string
	CreatedAt time.Time
}
