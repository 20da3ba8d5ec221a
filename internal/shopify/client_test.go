package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbusillo/product-connect/pkg/config"
)

func instantSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()

	rate, err := NewRateController(2000, 100, testLogger())
	require.NoError(t, err)
	rate.sleep = instantSleep

	cfg := &config.ShopifyConfig{
		StoreKey:           "test-store",
		APIToken:           "test-token",
		APIVersion:         "2023-10",
		Timeout:            5 * time.Second,
		EstimatedQueryCost: 100,
		MaxRetries:         5,
		MaxRetryDelay:      60 * time.Second,
	}

	client, err := NewClient(cfg, rate, testLogger())
	require.NoError(t, err)
	client.endpoint = endpoint
	client.sleep = instantSleep
	return client
}

func TestNewClient_MissingCredentials(t *testing.T) {
	rate, err := NewRateController(2000, 100, testLogger())
	require.NoError(t, err)

	_, err = NewClient(&config.ShopifyConfig{APIVersion: "2023-10"}, rate, testLogger())
	assert.True(t, IsConfiguration(err))
}

func TestExecute_Success(t *testing.T) {
	var gotToken, gotOperation string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")

		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotOperation, _ = payload["operationName"].(string)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"shop": map[string]interface{}{"name": "test"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Execute(context.Background(), "store", "GetShop", nil)
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "GetShop", gotOperation)
	assert.Contains(t, resp, "data")
}

func TestExecute_ThrottledExhaustsRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{
					"message":    "Throttled",
					"extensions": map[string]interface{}{"code": "THROTTLED"},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Execute(context.Background(), "store", "GetShop", nil)

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Contains(t, err.Error(), "failed after 5 attempts")
	assert.True(t, IsThrottled(err))
}

func TestExecute_ProtocolErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{
				{"message": "Field 'bogus' doesn't exist"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Execute(context.Background(), "store", "GetShop", nil)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsProtocol(err))
}

func TestExecute_TransportErrorRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"shop": map[string]interface{}{"name": "test"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Execute(context.Background(), "store", "GetShop", nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_ServerFeedbackAdjustsBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"shop": map[string]interface{}{"name": "test"}},
			"extensions": map[string]interface{}{
				"cost": map[string]interface{}{
					"actualQueryCost": 150.0,
					"throttleStatus": map[string]interface{}{
						"currentlyAvailable": 800.0,
						"restoreRate":        50.0,
						"maximumAvailable":   1000.0,
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Execute(context.Background(), "store", "GetShop", nil)
	require.NoError(t, err)

	// 800 reported, minus the 50-point overrun settlement.
	assert.InDelta(t, 750, client.rate.Available(), 5)
}

func TestGetShop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"shop": map[string]interface{}{
					"id":   "gid://shopify/Shop/1",
					"name": "Test Store",
					"url":  "https://test-store.myshopify.com",
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	shop, err := client.GetShop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Test Store", shop.Name)
}

func TestGetPrimaryLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"locations": map[string]interface{}{
					"edges": []map[string]interface{}{
						{"node": map[string]interface{}{
							"id":   "gid://shopify/Location/7",
							"name": "Stock",
						}},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	location, err := client.GetPrimaryLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Location/7", location.ID)
	assert.Equal(t, "Stock", location.Name)
}

// The first error entry decides the class of the whole response: a
// non-throttle error aborts even when a throttle entry follows it.
func TestClassifyErrors_FirstEntryDecides(t *testing.T) {
	throttled := map[string]interface{}{
		"message":    "Throttled",
		"extensions": map[string]interface{}{"code": "THROTTLED"},
	}
	malformed := map[string]interface{}{
		"message": "Field 'titel' doesn't exist on type 'Product'",
	}

	err := classifyErrors(map[string]interface{}{"errors": []interface{}{throttled, malformed}})
	var throttleErr *ThrottledError
	require.ErrorAs(t, err, &throttleErr)
	assert.Equal(t, "Throttled", throttleErr.Message)

	err = classifyErrors(map[string]interface{}{"errors": []interface{}{malformed, throttled}})
	var protocolErr *ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Len(t, protocolErr.Messages, 2)

	assert.NoError(t, classifyErrors(map[string]interface{}{"data": map[string]interface{}{}}))
	assert.NoError(t, classifyErrors(map[string]interface{}{"errors": []interface{}{}}))
}
