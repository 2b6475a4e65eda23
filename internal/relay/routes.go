package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"veloviz/internal/strava"
)

const (
	// minimumCodeLength rejects obviously truncated authorization codes before the
	// provider round trip. Strava codes are 40 hex characters.
	minimumCodeLength = 10

	processedCodeCapacity = 1000
)

// ProviderClient is the provider surface the relay handlers need. *strava.Client
// satisfies it; tests substitute fakes.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code string) (*strava.TokenPayload, error)
	RefreshToken(ctx context.Context, refreshToken string) (*strava.TokenPayload, error)
	ListActivities(ctx context.Context, accessToken string, perPage int) ([]strava.ActivitySummary, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*strava.Activity, error)
}

// MountRelayRoutes registers /health, /auth/callback, /auth/refresh, and
// /activities/last. The relay holds no state beyond the advisory processed-code set;
// tokens pass through per request and are never persisted server-side.
func MountRelayRoutes(router gin.IRouter, configuration Config, provider ProviderClient, logger *zap.Logger, metrics MetricsRecorder) {
	if logger == nil {
		logger = zap.NewNop()
	}
	processedCodes := newProcessedCodeSet(processedCodeCapacity)

	router.GET("/health", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"message": "Server is running"})
	})

	router.POST("/auth/callback", func(contextGin *gin.Context) {
		var inbound struct {
			Code string `json:"code"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid authorization code format"})
			return
		}
		if inbound.Code == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Authorization code required"})
			return
		}
		if len(inbound.Code) < minimumCodeLength {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Authorization code too short"})
			return
		}
		if !configuration.SecretConfigured() {
			logger.Error("client secret not configured",
				zap.String("code", "relay.callback.missing_secret"))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
			return
		}

		if processedCodes.Contains(inbound.Code) {
			logger.Warn("authorization code replayed",
				zap.String("code", "relay.callback.code_replay"),
				zap.String("auth_code_prefix", codePrefix(inbound.Code)))
			metrics.Increment("callback.replay")
		}

		logger.Info("exchanging authorization code",
			zap.String("auth_code_prefix", codePrefix(inbound.Code)),
			zap.Int("auth_code_length", len(inbound.Code)))

		payload, exchangeErr := provider.ExchangeCode(contextGin.Request.Context(), inbound.Code)
		if exchangeErr != nil {
			metrics.Increment("callback.failure")
			var upstreamErr *strava.UpstreamStatusError
			if errors.As(exchangeErr, &upstreamErr) {
				logger.Error("provider rejected code exchange",
					zap.String("code", "relay.callback.provider_rejection"),
					zap.Int("provider_status", upstreamErr.StatusCode))
				contextGin.AbortWithStatusJSON(upstreamErr.StatusCode, gin.H{
					"error":   "Failed to exchange token with Strava",
					"details": upstreamErr.Body,
				})
				return
			}
			logger.Error("code exchange failed",
				zap.String("code", "relay.callback.exchange_error"),
				zap.Error(exchangeErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate with Strava"})
			return
		}

		processedCodes.Add(inbound.Code)
		metrics.Increment("callback.success")
		contextGin.JSON(http.StatusOK, payload)
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		var inbound struct {
			RefreshToken string `json:"refresh_token"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.RefreshToken) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No refresh token provided"})
			return
		}
		if !configuration.SecretConfigured() {
			logger.Error("client secret not configured",
				zap.String("code", "relay.refresh.missing_secret"))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
			return
		}

		payload, refreshErr := provider.RefreshToken(contextGin.Request.Context(), inbound.RefreshToken)
		if refreshErr != nil {
			metrics.Increment("refresh.failure")
			logger.Error("token refresh failed",
				zap.String("code", "relay.refresh.provider_error"),
				zap.Error(refreshErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh token"})
			return
		}
		metrics.Increment("refresh.success")
		contextGin.JSON(http.StatusOK, payload)
	})

	router.GET("/activities/last", func(contextGin *gin.Context) {
		accessToken := bearerToken(contextGin.Request)
		if accessToken == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			return
		}

		summaries, listErr := provider.ListActivities(contextGin.Request.Context(), accessToken, 1)
		if listErr != nil {
			abortForUpstream(contextGin, logger, metrics, listErr, "relay.activities.list_error")
			return
		}
		if len(summaries) == 0 {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No activities found"})
			return
		}

		activity, detailErr := provider.GetActivity(contextGin.Request.Context(), accessToken, summaries[0].ID)
		if detailErr != nil {
			abortForUpstream(contextGin, logger, metrics, detailErr, "relay.activities.detail_error")
			return
		}
		metrics.Increment("activities.success")
		contextGin.JSON(http.StatusOK, activity)
	})
}

// abortForUpstream maps provider failures on the activities path: auth rejections
// pass through so the client knows to clear its credential, everything else is a 500.
func abortForUpstream(contextGin *gin.Context, logger *zap.Logger, metrics MetricsRecorder, upstreamFailure error, logCode string) {
	metrics.Increment("activities.failure")
	var upstreamErr *strava.UpstreamStatusError
	if errors.As(upstreamFailure, &upstreamErr) &&
		(upstreamErr.StatusCode == http.StatusUnauthorized || upstreamErr.StatusCode == http.StatusForbidden) {
		logger.Warn("provider rejected bearer token",
			zap.String("code", logCode),
			zap.Int("provider_status", upstreamErr.StatusCode))
		contextGin.AbortWithStatusJSON(upstreamErr.StatusCode, gin.H{"error": "Failed to fetch activity data from Strava"})
		return
	}
	logger.Error("provider activity fetch failed",
		zap.String("code", logCode),
		zap.Error(upstreamFailure))
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity data from Strava"})
}

func bearerToken(request *http.Request) string {
	header := request.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func codePrefix(code string) string {
	if len(code) <= minimumCodeLength {
		return code
	}
	return code[:minimumCodeLength] + "..."
}
