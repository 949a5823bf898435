package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/persistence"
	"github.com/cognitodev/launchpad/pkg/realtime/types"
	"go.uber.org/zap"
)

var (
	centrifugoConfig *types.Config
	httpClient       = &http.Client{Timeout: 10 * time.Second}
)

// Init configures the Centrifugo API. When Postgres is available, published events are kept
// for replay and pruned every 5 seconds until ctx is done.
func Init(ctx context.Context, c *types.Config) {
	centrifugoConfig = c

	if !persistence.IsInitialized() {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if _, err := persistence.DeleteReplayEventsBefore(ctx, time.Now().Add(-10*time.Second)); err != nil {
				logger.Errorf("Failed to delete old realtime_replay records: %v", err)
			}
		}
	}()
}

func SendEvent(ctx context.Context, r types.Recipient, e types.Event) error {
	messageData, err := e.GetMessageData()
	if err != nil {
		return err
	}

	channels := r.Channels(e)
	for i, userID := range r.UserIDs {
		if persistence.IsInitialized() {
			if err := persistence.StoreReplayEvent(ctx, userID, e.GetChannelName(), messageData); err != nil {
				logger.Errorf("Failed to store event for replay: %v", err)
			}
		}

		if err := sendMessage(ctx, "publish", map[string]interface{}{
			"channel": channels[i],
			"data":    messageData,
		}); err != nil {
			logger.Error(err, zap.String("userID", userID), zap.String("channel", channels[i]))
		}
	}

	return nil
}

// Ping checks that the Centrifugo API answers an info request.
func Ping(ctx context.Context) error {
	return sendMessage(ctx, "info", nil)
}

func sendMessage(ctx context.Context, method string, params map[string]interface{}) error {
	if centrifugoConfig == nil {
		return fmt.Errorf("centrifugo config not initialized")
	}

	requestBody := map[string]interface{}{
		"method": method,
	}
	if params != nil {
		requestBody["params"] = params
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("error encoding %s JSON: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, centrifugoConfig.Address, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+centrifugoConfig.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s to Centrifugo server: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("centrifugo %s failed with status code: %d", method, resp.StatusCode)
	}

	return nil
}
