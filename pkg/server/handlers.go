package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/croneborg/yt-search-proxy/pkg/lookup"
	"github.com/croneborg/yt-search-proxy/pkg/pipeline"
)

func (s *Server) handleSearch(c *gin.Context) {
	maxResults := 0
	if raw := c.Query("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid maxResults: must be an integer", "code": http.StatusBadRequest})
			return
		}
		maxResults = n
	}

	req := lookup.NewSearchRequest(c.Query("q"), maxResults)
	s.render(c, s.pipeline.Fulfill(c.Request.Context(), req))
}

func (s *Server) handleVideo(c *gin.Context) {
	req := lookup.NewVideoRequest(c.Param("id"))
	s.render(c, s.pipeline.Fulfill(c.Request.Context(), req))
}

func (s *Server) handleChannel(c *gin.Context) {
	req := lookup.NewChannelRequest(c.Param("id"))
	s.render(c, s.pipeline.Fulfill(c.Request.Context(), req))
}

// handleQuotaStatus reports the tracker state, probing for recovery when the
// debounce window allows.
func (s *Server) handleQuotaStatus(c *gin.Context) {
	snap := s.tracker.CheckStatus(c.Request.Context(), s.prober)

	body := gin.H{"quotaExceeded": snap.Exhausted}
	if snap.LastCheckedAt.IsZero() {
		body["lastCheckedAt"] = nil
	} else {
		body["lastCheckedAt"] = snap.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	if entries, err := s.store.Len(c.Request.Context()); err == nil {
		body["cacheEntries"] = entries
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) handleCacheFlush(c *gin.Context) {
	cleared, err := s.store.FlushAll(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Cache flush failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache flush failed", "code": http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clearedKeys": cleared})
}

// handleHealth reports liveness. Always 200: the proxy keeps serving (and
// degrading) through cache or quota trouble, so neither may fail the check.
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":        "ok",
		"quotaExceeded": s.tracker.Exhausted(),
	}

	if entries, err := s.store.Len(c.Request.Context()); err == nil {
		body["cacheReachable"] = true
		body["cacheEntries"] = entries
	} else {
		s.logger.Warn().Err(err).Msg("Cache unreachable during health check")
		body["cacheReachable"] = false
	}

	c.JSON(http.StatusOK, body)
}

// render writes a fulfillment outcome as JSON. Annotations are merged into
// the payload without overwriting upstream fields.
func (s *Server) render(c *gin.Context, out pipeline.Outcome) {
	if out.Status == pipeline.StatusError {
		body := gin.H{"error": out.ErrorMessage, "code": out.StatusCode}
		if out.QuotaExceeded {
			body["quotaExceeded"] = true
		}
		if out.Details != nil {
			body["details"] = out.Details
		}
		c.JSON(out.StatusCode, body)
		return
	}

	body := out.Payload
	for k, v := range out.Annotations {
		if _, exists := body[k]; !exists {
			body[k] = v
		}
	}
	c.JSON(out.StatusCode, body)
}
