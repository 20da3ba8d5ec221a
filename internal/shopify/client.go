package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/models"
)

// defaultRetryAfter is assumed when a transport error carries no Retry-After
// header, matching the remote API's usual guidance.
const defaultRetryAfter = 4

// Client executes named operations against the Shopify GraphQL endpoint. It
// consults the rate controller before every call, classifies error payloads,
// and retries throttled and transport failures with backoff.
type Client struct {
	http    *http.Client
	queries *QueryLibrary
	rate    *RateController
	logger  *logrus.Entry

	endpoint      string
	token         string
	estimatedCost float64
	maxRetries    int
	maxRetryDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for the configured store. Missing credentials
// are a configuration error.
func NewClient(cfg *config.ShopifyConfig, rate *RateController, logger *logrus.Logger) (*Client, error) {
	if cfg.StoreKey == "" || cfg.APIToken == "" || cfg.APIVersion == "" {
		return nil, &ConfigurationError{Reason: "shopify store key, api token and api version are required"}
	}

	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		queries:       NewQueryLibrary(),
		rate:          rate,
		logger:        logger.WithField("component", "shopify-client"),
		endpoint:      cfg.EndpointURL(),
		token:         cfg.APIToken,
		estimatedCost: cfg.EstimatedQueryCost,
		maxRetries:    cfg.MaxRetries,
		maxRetryDelay: cfg.MaxRetryDelay,
		sleep:         sleepContext,
	}, nil
}

// Rate exposes the rate controller, mainly for status reporting.
func (c *Client) Rate() *RateController {
	return c.rate
}

// Execute resolves the named operation and dispatches it, retrying throttled
// and transport failures up to the attempt bound. Configuration and protocol
// errors abort immediately.
func (c *Client) Execute(ctx context.Context, queryType, operationName string, variables map[string]interface{}) (map[string]interface{}, error) {
	queryText, err := c.queries.Resolve(queryType, operationName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		resp, err := c.dispatch(ctx, queryText, operationName, variables)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var delay time.Duration
		switch e := err.(type) {
		case *ThrottledError:
			delay = capDelay(time.Duration(math.Pow(2, float64(attempt)))*time.Second, c.maxRetryDelay)
		case *TransportError:
			backoff := capDelay(time.Duration(attempt*2)*time.Second, c.maxRetryDelay)
			header := e.RetryAfter
			if header <= 0 {
				header = defaultRetryAfter
			}
			headerDelay := time.Duration(header * float64(time.Second))
			delay = headerDelay
			if backoff > delay {
				delay = backoff
			}
		default:
			// Configuration, protocol and context errors are not transient.
			return nil, err
		}

		c.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		}).WithError(err).Debug("Remote call failed, backing off")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("remote call %s failed after %d attempts: %w", operationName, c.maxRetries, lastErr)
}

// dispatch performs one HTTP round trip: reserve budget, post the query,
// classify the envelope, feed server cost feedback back into the controller.
func (c *Client) dispatch(ctx context.Context, queryText, operationName string, variables map[string]interface{}) (map[string]interface{}, error) {
	if err := c.rate.Reserve(ctx, c.estimatedCost); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query":         queryText,
		"operationName": operationName,
	}
	if variables != nil {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64)
		return nil, &TransportError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}

	var parsed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if err := classifyErrors(parsed); err != nil {
		return nil, err
	}

	c.recordCost(ctx, parsed)
	return parsed, nil
}

// classifyErrors inspects the top-level error list. The first entry decides
// the class: a THROTTLED extension code is transient, anything else indicates
// a malformed request and aborts.
func classifyErrors(parsed map[string]interface{}) error {
	errList, ok := parsed["errors"].([]interface{})
	if !ok || len(errList) == 0 {
		return nil
	}

	first, _ := errList[0].(map[string]interface{})
	ext, _ := first["extensions"].(map[string]interface{})
	if code, _ := ext["code"].(string); code == "THROTTLED" {
		msg, _ := first["message"].(string)
		return &ThrottledError{Message: msg}
	}

	messages := make([]string, 0, len(errList))
	for _, e := range errList {
		messages = append(messages, describeError(e))
	}
	return &ProtocolError{Messages: messages}
}

// recordCost feeds the response's cost block to the rate controller and
// settles the difference when the actual cost exceeded the estimate.
func (c *Client) recordCost(ctx context.Context, parsed map[string]interface{}) {
	ext, _ := parsed["extensions"].(map[string]interface{})
	cost, ok := ext["cost"].(map[string]interface{})
	if !ok {
		return
	}

	var status ThrottleStatus
	if err := Decode(cost["throttleStatus"], &status); err == nil {
		c.rate.RecordServerFeedback(status)
	}

	actual, _ := cost["actualQueryCost"].(float64)
	if actual > c.estimatedCost {
		if err := c.rate.Reserve(ctx, actual-c.estimatedCost); err != nil {
			c.logger.WithError(err).Warn("Failed to settle query cost overrun")
		}
	}
}

// GetShop fetches the connected store, establishing that the session works.
func (c *Client) GetShop(ctx context.Context) (*models.RemoteShop, error) {
	resp, err := c.Execute(ctx, "store", "GetShop", nil)
	if err != nil {
		return nil, err
	}

	data, err := Validate(resp)
	if err != nil {
		return nil, err
	}

	var shop models.RemoteShop
	if err := Decode(Flatten(data), &shop); err != nil {
		return nil, err
	}
	return &shop, nil
}

// GetPrimaryLocation fetches the first inventory location, used for initial
// stock assignments on export.
func (c *Client) GetPrimaryLocation(ctx context.Context) (*models.RemoteLocation, error) {
	resp, err := c.Execute(ctx, "store", "GetLocations", nil)
	if err != nil {
		return nil, err
	}

	data, err := Validate(resp)
	if err != nil {
		return nil, err
	}

	var locations []models.RemoteLocation
	if err := Decode(Flatten(data), &locations); err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, &ProtocolError{Messages: []string{"store has no inventory locations"}}
	}
	return &locations[0], nil
}

func capDelay(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
