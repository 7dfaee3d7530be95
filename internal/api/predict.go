package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xplain-ai/xplain-server/internal/app"
	"github.com/xplain-ai/xplain-server/internal/captioning"
	"github.com/xplain-ai/xplain-server/internal/startup"
)

const (
	// Multipart field names of the predict endpoints.
	SingleFileField = "file"
	BatchFilesField = "files"
)

type PredictResponse struct {
	Caption   string `json:"caption"`
	RequestID string `json:"request_id,omitempty"`
}

type PredictBatchResponse struct {
	Results   []captioning.CaptionResult `json:"results"`
	RequestID string                     `json:"request_id,omitempty"`
}

// Health reports the startup state; it is reachable before readiness so
// probes can watch the machine move toward READY.
func Health(c *gin.Context) {
	a := c.MustGet("app").(*app.App)
	orch := a.Orchestrator()

	state := orch.State()
	payload := gin.H{
		"status": "starting",
		"state":  state.String(),
	}
	if state == startup.StateReady {
		payload["status"] = "ok"
		if captioner, ok := orch.Captioner(); ok {
			payload["model_family"] = captioner.Family()
			payload["model_fingerprint"] = captioner.Fingerprint()
		}
		if resolved := orch.ResolvedModel(); resolved != nil {
			payload["model_source"] = string(resolved.Source)
		}
	}

	c.JSON(http.StatusOK, payload)
}

// Predict captions one uploaded image.
func Predict(c *gin.Context) {
	a := c.MustGet("app").(*app.App)

	captioner, ok := a.Orchestrator().Captioner()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
		return
	}

	file, err := c.FormFile(SingleFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("missing %q upload field", SingleFileField),
		})
		return
	}

	data, err := readUpload(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caption, err := captioner.Caption(c.Request.Context(), data)
	if err != nil {
		respondCaptionError(c, a.Logger(), err)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Caption:   caption,
		RequestID: c.GetString("request_id"),
	})
}

// PredictBatch captions several uploaded images as one unit. Results are
// order-aligned with the uploads; a batch with a corrupt entry fails
// whole, naming the offending position.
func PredictBatch(c *gin.Context) {
	a := c.MustGet("app").(*app.App)

	captioner, ok := a.Orchestrator().Captioner()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse multipart form"})
		return
	}

	files := form.File[BatchFilesField]
	images := make([][]byte, len(files))
	for i, file := range files {
		data, err := readUpload(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "index": i})
			return
		}
		images[i] = data
	}

	results, err := captioner.CaptionBatch(c.Request.Context(), images)
	if err != nil {
		respondCaptionError(c, a.Logger(), err)
		return
	}

	c.JSON(http.StatusOK, PredictBatchResponse{
		Results:   results,
		RequestID: c.GetString("request_id"),
	})
}

// readUpload reads one multipart file and checks that it at least sniffs
// as an image before the captioner spends cycles decoding it.
func readUpload(file *multipart.FileHeader) ([]byte, error) {
	content, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %q: %w", file.Filename, err)
	}
	defer content.Close()

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %q: %w", file.Filename, err)
	}

	if mtype := mimetype.Detect(data); !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("upload %q is %s, not an image", file.Filename, mtype.String())
	}

	return data, nil
}

// respondCaptionError translates captioner failures: input problems are
// the client's fault, everything else is a server fault. The shared
// captioner state is unaffected either way.
func respondCaptionError(c *gin.Context, logger *zap.Logger, err error) {
	var batchErr *captioning.BatchItemError
	if errors.As(err, &batchErr) {
		var inputErr *captioning.InputError
		if errors.As(batchErr.Err, &inputErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": batchErr.Error(), "index": batchErr.Index})
			return
		}

		logger.Error("batch captioning failed", zap.Int("index", batchErr.Index), zap.Error(batchErr.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "captioning failed", "index": batchErr.Index})
		return
	}

	var inputErr *captioning.InputError
	if errors.As(err, &inputErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Error()})
		return
	}

	logger.Error("captioning failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "captioning failed"})
}
