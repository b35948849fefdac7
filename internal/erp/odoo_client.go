package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

var ErrAuthFailed = errors.New("odoo: authentication failed, check credentials and database name")

// OdooClient talks to Odoo's /jsonrpc endpoint.
type OdooClient struct {
	baseURL  string
	db       string
	username string
	password string
	client   *http.Client

	nextID atomic.Int64

	mu  sync.Mutex
	uid int64
}

func NewOdooClient(baseURL, db, username, password string, timeout time.Duration) *OdooClient {
	return &OdooClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		db:       db,
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// Execute calls object.execute_kw, authenticating first if needed.
func (c *OdooClient) Execute(
	ctx context.Context,
	model string,
	method string,
	args []any,
	kwargs map[string]any,
) (json.RawMessage, error) {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	start := time.Now()
	res, err := c.call(ctx, "object", "execute_kw", []any{
		c.db, uid, c.password, model, method, args, kwargs,
	})

	log := observability.LoggerFromContext(ctx).With(
		zap.String("model", model),
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		log.Warn("odoo execute_kw failed", zap.Error(err))
		return nil, err
	}
	log.Debug("odoo execute_kw ok")
	return res, nil
}

// Version returns the server version info; used by the health check.
func (c *OdooClient) Version(ctx context.Context) (map[string]any, error) {
	raw, err := c.call(ctx, "common", "version", []any{})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	return out, nil
}

func (c *OdooClient) authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, nil
	}

	raw, err := c.call(ctx, "common", "authenticate", []any{
		c.db, c.username, c.password, map[string]any{},
	})
	if err != nil {
		return 0, err
	}

	// authenticate answers false on bad credentials
	var uid int64
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, ErrAuthFailed
	}

	observability.LoggerFromContext(ctx).Info("connected to odoo",
		zap.String("url", c.baseURL),
		zap.String("db", c.db),
		zap.Int64("uid", uid),
	)
	c.uid = uid
	return uid, nil
}

func (c *OdooClient) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("odoo transport: %s body=%s", resp.Status, string(respBody))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}

	if out.Error != nil {
		msg := out.Error.Data.Message
		if msg == "" {
			msg = out.Error.Message
		}
		return nil, &RemoteError{
			Code:    out.Error.Code,
			Message: msg,
			Name:    out.Error.Data.Name,
		}
	}
	return out.Result, nil
}
