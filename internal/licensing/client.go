// Package licensing talks to the remote licensing service, the system of
// record for license keys. This service only asks it to create contracts
// and mirrors the result locally.
package licensing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"keymint.app/commerce/internal/logger"
)

// codeCreated is the response code the remote reports for a successfully
// created contract.
const codeCreated = 841

const createContractPath = "/api/v1/create-contract"

// ErrKeyCollision means the remote rejected the contract key because a
// contract with that key already exists. Retryable with a fresh key.
var ErrKeyCollision = errors.New("licensing: contract key already exists")

// TransportError wraps a failure to complete the HTTP round trip.
// Retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("licensing: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is any remote rejection other than a key collision (bad product
// id, quota exceeded, malformed response). Terminal: retrying will not
// change the outcome.
type APIError struct {
	Code   int
	Fields map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("licensing: remote rejected request (code %d): %v", e.Code, e.Fields)
	}
	return fmt.Sprintf("licensing: remote rejected request (code %d)", e.Code)
}

// IsRetryable reports whether the provisioner should try the call again:
// transport failures and key collisions only. Everything else is terminal.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrKeyCollision) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}

type CreateContractRequest struct {
	APIKey              string `json:"api_key"`
	ProductID           string `json:"product_id"`
	LicenseKeysQuantity int    `json:"license_keys_quantity"`
	ContractKey         string `json:"contract_key"`
	ContractName        string `json:"contract_name"`
	ContractInformation string `json:"contract_information"`
	Status              string `json:"status"`
	CanGetInfo          string `json:"can_get_info"`
	CanGenerate         string `json:"can_generate"`
	CanDestroy          string `json:"can_destroy"`
	CanDestroyAll       string `json:"can_destroy_all"`
}

// Flag tolerates the remote's habit of encoding booleans as "1"/"0",
// numbers, or real booleans depending on the endpoint.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", `"1"`, "1":
		*f = true
	case "false", `"0"`, "0", "null", `""`:
		*f = false
	default:
		return fmt.Errorf("licensing: cannot parse flag value %s", data)
	}
	return nil
}

// ContractPayload is the contract the remote echoes back. The provider's
// own id and license_keys_count are dropped before local persistence.
type ContractPayload struct {
	Name                string `json:"name"`
	Information         string `json:"information"`
	ContractKey         string `json:"contract_key"`
	LicenseKeysQuantity int    `json:"license_keys_quantity"`
	ProductID           string `json:"product_id"`
	CanGetInfo          Flag   `json:"can_get_info"`
	CanGenerate         Flag   `json:"can_generate"`
	CanDestroy          Flag   `json:"can_destroy"`
	CanDestroyAll       Flag   `json:"can_destroy_all"`
	Status              string `json:"status"`
}

type createContractResponse struct {
	Response struct {
		Code     int                        `json:"code"`
		Contract *ContractPayload           `json:"contract"`
		Errors   map[string]json.RawMessage `json:"errors"`
	} `json:"response"`
}

type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateContract performs one create-contract round trip. The caller owns
// the retry policy.
func (c *Client) CreateContract(ctx context.Context, req *CreateContractRequest) (*ContractPayload, error) {
	req.APIKey = c.APIKey

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("licensing: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+createContractPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("licensing: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	logger.Debug("create-contract response", map[string]interface{}{
		"status":       resp.StatusCode,
		"body_size":    len(raw),
		"contract_key": req.ContractKey,
	})

	var decoded createContractResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &APIError{Code: resp.StatusCode, Fields: map[string]string{
			"body": "unparseable response",
		}}
	}

	if _, collided := decoded.Response.Errors["contract_key"]; collided {
		return nil, ErrKeyCollision
	}

	if decoded.Response.Code == codeCreated && decoded.Response.Contract != nil {
		return decoded.Response.Contract, nil
	}

	return nil, &APIError{Code: decoded.Response.Code, Fields: flattenErrors(decoded.Response.Errors)}
}

// flattenErrors renders field errors to strings; the remote sends either a
// string or an array of strings per field.
func flattenErrors(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for field, msg := range raw {
		var single string
		if err := json.Unmarshal(msg, &single); err == nil {
			out[field] = single
			continue
		}
		var many []string
		if err := json.Unmarshal(msg, &many); err == nil && len(many) > 0 {
			out[field] = many[0]
			continue
		}
		out[field] = string(msg)
	}
	return out
}
