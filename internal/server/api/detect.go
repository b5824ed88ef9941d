package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/logging"
	"github.com/ayusman/eightball/internal/overlay"
	"github.com/ayusman/eightball/internal/profile"
	"github.com/ayusman/eightball/internal/store"
)

// DefaultMaxUploadBytes caps the size of an uploaded image.
const DefaultMaxUploadBytes = 20 << 20

// Output formats for POST /api/detect.
const (
	FormatJSON    = "json"
	FormatOverlay = "overlay"
	FormatMask    = "mask"
	// FormatDebug places the overlay and the mask side by side.
	FormatDebug = "debug"
)

// DetectHandler runs one-shot detection on uploaded images.
type DetectHandler struct {
	store    *store.Store
	opts     imageio.Options
	maxBytes int64
	log      *logrus.Logger
}

// NewDetectHandler creates a DetectHandler. s may be nil, in which case only
// built-in profiles are available.
func NewDetectHandler(s *store.Store, opts imageio.Options, logger *logrus.Logger) *DetectHandler {
	return &DetectHandler{
		store:    s,
		opts:     opts,
		maxBytes: DefaultMaxUploadBytes,
		log:      logging.OrDiscard(logger),
	}
}

type detectResponse struct {
	Profile   string          `json:"profile"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Detection overlay.Summary `json:"detection"`
}

// ServeHTTP handles POST /api/detect.
//
// The image is either the raw request body or the "image" field of a
// multipart form. Query parameters:
//
//	profile  profile name (defaults to the active profile)
//	format   json (default), overlay, mask or debug
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	switch format {
	case FormatJSON, FormatOverlay, FormatMask, FormatDebug:
	default:
		writeError(w, http.StatusBadRequest, "format must be json, overlay, mask or debug")
		return
	}

	name := r.URL.Query().Get("profile")
	if name == "" {
		active, err := profile.Active(h.store)
		if err != nil {
			h.log.WithError(err).Warn("Failed to read active profile")
			active = profile.DefaultName
		}
		name = active
	}
	p, err := profile.Resolve(h.store, name)
	if err != nil {
		if errors.Is(err, profile.ErrUnknownProfile) {
			writeError(w, http.StatusBadRequest, "Unknown profile: "+name)
			return
		}
		h.log.WithError(err).Error("Failed to resolve profile")
		writeError(w, http.StatusInternalServerError, "Failed to resolve profile")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	body, closeBody, err := imageBody(r)
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
			return
		}
		writeError(w, http.StatusBadRequest, `multipart field "image" is required`)
		return
	}
	defer closeBody()

	frame, err := imageio.Decode(body, h.opts)
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not decode image")
		return
	}
	defer frame.Close()

	d, err := detector.NewTableDetector(p.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer d.Close()

	res, err := d.Detect(&frame)
	if err != nil {
		if errors.Is(err, detector.ErrInvalidInput) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.WithError(err).Error("Detection failed")
		writeError(w, http.StatusInternalServerError, "Detection failed")
		return
	}
	defer res.Close()

	summary := overlay.Summarize(res)
	h.log.WithFields(logrus.Fields{
		"profile": p.Name,
		"found":   summary.Found,
		"corners": len(summary.Corners),
	}).Debug("One-shot detection")

	switch format {
	case FormatOverlay:
		annotated := frame.Clone()
		defer annotated.Close()
		overlay.Draw(&annotated, summary)
		h.writeImage(w, annotated)
	case FormatMask:
		h.writeImage(w, res.Mask)
	case FormatDebug:
		annotated := frame.Clone()
		defer annotated.Close()
		overlay.Draw(&annotated, summary)
		debug := overlay.SideBySide(annotated, res.Mask)
		defer debug.Close()
		h.writeImage(w, debug)
	default:
		writeJSON(w, http.StatusOK, detectResponse{
			Profile:   p.Name,
			Width:     frame.Cols(),
			Height:    frame.Rows(),
			Detection: summary,
		})
	}
}

func (h *DetectHandler) writeImage(w http.ResponseWriter, mat gocv.Mat) {
	jpeg, err := imageio.EncodeJPEG(mat)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode image")
		writeError(w, http.StatusInternalServerError, "Failed to encode image")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(jpeg)
}

// imageBody returns a reader over the uploaded image.
func imageBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, func() {}, nil
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, nil, fmt.Errorf("read image field: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
