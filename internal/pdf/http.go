package pdf

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// JobScheduler は翻訳ジョブを受け付け、ジョブIDを返します。ジョブ本体は非同期に実行されます。
type JobScheduler interface {
	Schedule(ctx context.Context, req *TranslateRequest) (string, error)
}

// HandlerOptions は TranslateHandler の設定です。
type HandlerOptions struct {
	// IsSupportedService は受け付け可能なサービスかどうかを判定します。nil なら全て受け付けます。
	IsSupportedService func(service string) bool
}

// TranslateHandler は POST /translate のハンドラーを返します。
func TranslateHandler(scheduler JobScheduler, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		req, err := ParseTranslateRequest(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if opts.IsSupportedService != nil && !opts.IsSupportedService(req.Service) {
			c.JSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "Unsupported service: " + req.DisplayService(),
			})
			return
		}

		jobID, err := scheduler.Schedule(c.Request.Context(), req)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobId": jobID})
	}
}

func respondWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	var apiErr *Error
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": validationErr.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": apiErr.Message, "code": apiErr.Code})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{"ok": false, "error": "request canceled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal server error"})
	}
}
