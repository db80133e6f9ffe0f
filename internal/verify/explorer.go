// Package verify submits deployed contracts to Etherscan compatible block
// explorers for source verification.
package verify

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

const (
	statusOK         = "1"
	alreadyVerified  = "already verified"
	pendingInQueue   = "pending in queue"
	passVerified     = "pass - verified"
	codeFormatJSON   = "solidity-standard-json-input"
	defaultPollDelay = 5 * time.Second
	defaultMaxPolls  = 24
)

var ErrNotVerified = errors.New("explorer rejected verification")

type (
	// Gateway submits a deployed contract for verification. A nil error means
	// the explorer reports the contract as verified.
	Gateway interface {
		Verify(ctx context.Context, req Request) error
	}

	Request struct {
		Network string
		ChainID uint64
		Address common.Address
		// Artifact is the plan name reported in errors, Contract the
		// compiled contract submitted to the explorer.
		Artifact        string
		Contract        string
		ConstructorArgs []any
	}

	Options struct {
		PollInterval time.Duration
		MaxPolls     int
		Timeout      time.Duration
	}

	// ExplorerClient talks to the "contract" module of an Etherscan style API.
	ExplorerClient struct {
		client       *resty.Client
		apiKey       string
		registry     *chain.Registry
		pollInterval time.Duration
		maxPolls     int
		logger       *slog.Logger
	}

	apiResponse struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
)

func NewExplorerClient(baseURL, apiKey string, registry *chain.Registry, opts Options) *ExplorerClient {
	client := resty.New().SetBaseURL(baseURL)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollDelay
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	return &ExplorerClient{
		client:       client,
		apiKey:       apiKey,
		registry:     registry,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		logger:       logger.Named("explorer"),
	}
}

func (c *ExplorerClient) Verify(ctx context.Context, req Request) error {
	artifact := req.Artifact
	if artifact == "" {
		artifact = req.Contract
	}

	log := c.logger.
		With("network", req.Network).
		With("artifact", artifact).
		With("contract", req.Contract).
		With("address", req.Address.Hex())

	form, err := c.submission(req)
	if err != nil {
		return &failure.VerificationError{Artifact: artifact, Err: err}
	}

	submitted, err := c.post(ctx, form)
	if err != nil {
		return &failure.VerificationError{Artifact: artifact, Err: err}
	}
	if isAlreadyVerified(submitted) {
		log.Info("contract already verified")
		return nil
	}
	if submitted.Status != statusOK {
		return &failure.VerificationError{Artifact: artifact, Err: fmt.Errorf("%w: %s", ErrNotVerified, submitted.Result)}
	}

	guid := submitted.Result
	log.With("guid", guid).Info("verification submitted, waiting for explorer")

	if err := c.awaitResult(ctx, guid); err != nil {
		return &failure.VerificationError{Artifact: artifact, Err: err}
	}

	log.Info("contract verified")
	return nil
}

func (c *ExplorerClient) submission(req Request) (map[string]string, error) {
	compiled, err := c.registry.Contract(req.Contract)
	if err != nil {
		return nil, err
	}

	packed, err := c.registry.PackConstructor(req.Contract, req.ConstructorArgs)
	if err != nil {
		return nil, err
	}

	contractName := req.Contract
	if compiled.SourceName != "" {
		contractName = compiled.SourceName + ":" + req.Contract
	}

	form := map[string]string{
		"apikey":          c.apiKey,
		"module":          "contract",
		"action":          "verifysourcecode",
		"chainid":         fmt.Sprintf("%d", req.ChainID),
		"contractaddress": req.Address.Hex(),
		"contractname":    contractName,
		"codeformat":      codeFormatJSON,
		// the misspelling is part of the explorer API
		"constructorArguements": hex.EncodeToString(packed),
	}
	if compiled.CompilerVersion != "" {
		form["compilerversion"] = compiled.CompilerVersion
	}
	if len(compiled.StandardInput) > 0 {
		form["sourceCode"] = string(compiled.StandardInput)
	}

	return form, nil
}

func (c *ExplorerClient) post(ctx context.Context, form map[string]string) (apiResponse, error) {
	var result apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetHeader("Accept", "application/json").
		Post("")
	if err != nil {
		return apiResponse{}, fmt.Errorf("failed to submit verification: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apiResponse{}, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode())
	}
	return result, nil
}

func (c *ExplorerClient) check(ctx context.Context, guid string) (apiResponse, error) {
	var result apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey": c.apiKey,
			"module": "contract",
			"action": "checkverifystatus",
			"guid":   guid,
		}).
		SetResult(&result).
		SetHeader("Accept", "application/json").
		Get("")
	if err != nil {
		return apiResponse{}, fmt.Errorf("failed to check verification status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apiResponse{}, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode())
	}
	return result, nil
}

func (c *ExplorerClient) awaitResult(ctx context.Context, guid string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for range c.maxPolls {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := c.check(ctx, guid)
		if err != nil {
			return err
		}

		result := strings.ToLower(status.Result)
		switch {
		case strings.HasPrefix(result, passVerified), isAlreadyVerified(status):
			return nil
		case strings.HasPrefix(result, pendingInQueue):
			continue
		default:
			return fmt.Errorf("%w: %s", ErrNotVerified, status.Result)
		}
	}

	return fmt.Errorf("verification %s still pending after %d checks", guid, c.maxPolls)
}

func isAlreadyVerified(r apiResponse) bool {
	return strings.Contains(strings.ToLower(r.Result), alreadyVerified) ||
		strings.Contains(strings.ToLower(r.Message), alreadyVerified)
}
